package core

import (
	"errors"
	"testing"

	"habitpulse/internal/types"
)

type testNotificationRequest struct {
	Title    string `json:"title" validate:"required,max=100"`
	Time     string `json:"time" validate:"required,hhmm"`
	Days     []int  `json:"days_of_week" validate:"weekdays"`
	Timezone string `json:"timezone,omitempty" validate:"omitempty,is_timezone"`
}

func TestValidationResult_IsValid(t *testing.T) {
	if !(ValidationResult{}).IsValid() {
		t.Error("empty result should be valid")
	}
	if !(ValidationResult{Warnings: []string{"days_of_week is empty"}}).IsValid() {
		t.Error("warnings alone should not invalidate")
	}
	if (ValidationResult{Errors: []ValidationError{{Field: "time"}}}).IsValid() {
		t.Error("errors should invalidate")
	}
}

func TestNewValidator(t *testing.T) {
	v := NewValidator(testLogger())
	if v.validate == nil || v.logger == nil {
		t.Fatal("validator not fully initialised")
	}
}

func TestValidateStruct_DomainTags(t *testing.T) {
	v := NewValidator(testLogger())

	tests := []struct {
		name  string
		req   testNotificationRequest
		code  types.ErrorCode
		field string
	}{
		{"valid", testNotificationRequest{Title: "Stretch", Time: "07:30", Days: []int{0, 6}, Timezone: "Asia/Karachi"}, "", ""},
		{"empty days are allowed", testNotificationRequest{Title: "Stretch", Time: "23:59"}, "", ""},
		{"missing title", testNotificationRequest{Time: "07:30"}, types.ErrCodeValidationMissingField, "title"},
		{"long title", testNotificationRequest{Title: string(make([]byte, 101)), Time: "07:30"}, types.ErrCodeValidationFieldTooLong, "title"},
		{"bad hour", testNotificationRequest{Title: "x", Time: "24:00"}, types.ErrCodeValidationInvalidTime, "time"},
		{"single digit hour", testNotificationRequest{Title: "x", Time: "7:30"}, types.ErrCodeValidationInvalidTime, "time"},
		{"weekday out of range", testNotificationRequest{Title: "x", Time: "07:30", Days: []int{1, 7}}, types.ErrCodeValidationInvalidWeekdays, "days_of_week"},
		{"negative weekday", testNotificationRequest{Title: "x", Time: "07:30", Days: []int{-1}}, types.ErrCodeValidationInvalidWeekdays, "days_of_week"},
		{"bad timezone", testNotificationRequest{Title: "x", Time: "07:30", Timezone: "Mars/Olympus"}, types.ErrCodeValidationInvalidTimezone, "timezone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateStruct(tt.req)
			if tt.code == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var appErr *types.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected AppError, got %v", err)
			}
			if appErr.Code != tt.code {
				t.Errorf("expected %s, got %s", tt.code, appErr.Code)
			}
			errs, ok := appErr.Details["validation_errors"].([]ValidationError)
			if !ok || len(errs) == 0 {
				t.Fatalf("expected validation_errors detail, got %v", appErr.Details)
			}
			if errs[0].Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, errs[0].Field)
			}
		})
	}
}

func TestValidateStructWithWarnings_CollectsAll(t *testing.T) {
	v := NewValidator(testLogger())
	result := v.ValidateStructWithWarnings(testNotificationRequest{Time: "nope", Days: []int{9}})

	codes := map[string]bool{}
	for _, e := range result.Errors {
		codes[e.Code] = true
	}
	for _, want := range []types.ErrorCode{
		types.ErrCodeValidationMissingField,
		types.ErrCodeValidationInvalidTime,
		types.ErrCodeValidationInvalidWeekdays,
	} {
		if !codes[string(want)] {
			t.Errorf("expected %s in %v", want, result.Errors)
		}
	}
}

func TestValidateStruct_NonStructInput(t *testing.T) {
	v := NewValidator(testLogger())
	err := v.ValidateStruct("not a struct")

	var appErr *types.AppError
	if !errors.As(err, &appErr) || appErr.Code != types.ErrCodeValidationInvalidPayload {
		t.Fatalf("expected invalid payload error, got %v", err)
	}
}
