package main

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func TestValidateEnvironment(t *testing.T) {
	for _, env := range []string{"dev", "staging", "prod"} {
		if err := validateEnvironment(env); err != nil {
			t.Errorf("%s: %v", env, err)
		}
	}
	for _, env := range []string{"", "local", "PROD"} {
		if err := validateEnvironment(env); err == nil {
			t.Errorf("%q accepted", env)
		}
	}
}

func TestConfirmProduction(t *testing.T) {
	s := &Session{Environment: "prod", AccountID: "123456789012", AWSRegion: "us-east-1"}
	tests := []struct {
		input string
		want  bool
	}{
		{"yes\n", true},
		{"YES\n", true},
		{"y\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		got := confirmProduction(s, bufio.NewReader(strings.NewReader(tt.input)), &out)
		if got != tt.want {
			t.Errorf("input %q: got %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "123456789012") {
			t.Error("warning must show the account")
		}
	}
}

func TestPrintBanner(t *testing.T) {
	var out bytes.Buffer
	printBanner(&Session{Environment: "staging", AccountID: "1", AWSRegion: "eu-west-1", AWSProfile: "ops"}, &out)

	for _, want := range []string{"staging", "eu-west-1", "Profile:      ops", "/staging/habitpulse/"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("banner missing %q", want)
		}
	}
}
