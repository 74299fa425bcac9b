package config

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

type fakeSSMClient struct {
	params  map[string]string
	err     error
	batches [][]string
}

func (f *fakeSSMClient) GetParameters(_ context.Context, in *ssm.GetParametersInput, _ ...func(*ssm.Options)) (*ssm.GetParametersOutput, error) {
	f.batches = append(f.batches, in.Names)
	if f.err != nil {
		return nil, f.err
	}
	out := &ssm.GetParametersOutput{}
	for _, name := range in.Names {
		if v, ok := f.params[name]; ok {
			out.Parameters = append(out.Parameters, ssmtypes.Parameter{Name: aws.String(name), Value: aws.String(v)})
		} else {
			out.InvalidParameters = append(out.InvalidParameters, name)
		}
	}
	return out, nil
}

func TestSSMProviderSatisfiesSecretProvider(t *testing.T) {
	var _ SecretProvider = (*SSMProvider)(nil)
	var _ SecretProvider = (*EnvVarProvider)(nil)
}

func TestSSMProviderBatchesOfTen(t *testing.T) {
	client := &fakeSSMClient{params: map[string]string{}}
	keys := make([]string, 0, 23)
	for i := 0; i < 23; i++ {
		k := "/dev/habitpulse/p" + string(rune('a'+i))
		keys = append(keys, k)
		client.params[k] = "v" + k
	}

	p := newSSMProviderWithClient("us-east-1", client)
	got, err := p.GetParametersBatch(context.Background(), keys)
	if err != nil {
		t.Fatalf("GetParametersBatch: %v", err)
	}
	if len(got) != 23 {
		t.Errorf("resolved %d params, want 23", len(got))
	}
	if len(client.batches) != 3 || len(client.batches[0]) != 10 || len(client.batches[2]) != 3 {
		t.Errorf("unexpected batching: %d calls", len(client.batches))
	}
}

func TestSSMProviderInvalidParameter(t *testing.T) {
	client := &fakeSSMClient{params: map[string]string{"/a": "1"}}
	p := newSSMProviderWithClient("us-east-1", client)

	if _, err := p.GetParametersBatch(context.Background(), []string{"/a", "/missing"}); err == nil {
		t.Fatal("expected error for invalid parameter")
	}
}

func TestSSMProviderClientError(t *testing.T) {
	boom := errors.New("access denied")
	p := newSSMProviderWithClient("us-east-1", &fakeSSMClient{err: boom})

	_, err := p.GetParametersBatch(context.Background(), []string{"/a"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped client error, got %v", err)
	}
}

func TestSSMProviderEmptyKeys(t *testing.T) {
	p := newSSMProviderWithClient("us-east-1", &fakeSSMClient{})
	got, err := p.GetParametersBatch(context.Background(), nil)
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil map, got %v, %v", got, err)
	}
}

func TestSSMProviderCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &fakeSSMClient{params: map[string]string{"/a": "1"}}
	p := newSSMProviderWithClient("us-east-1", client)
	if _, err := p.GetParametersBatch(ctx, []string{"/a"}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if len(client.batches) != 0 {
		t.Error("no SSM call should be made after cancellation")
	}
}
