package service

import (
	"testing"

	"github.com/procural/be-procurement/internal/errors"
)

func validInput() *CreateRequestInput {
	return &CreateRequestInput{
		RequesterID: "user-1",
		Title:       "Monitors for the ops team",
		Currency:    "USD",
		Lines: []*RequestLineInput{
			{LineNumber: 1, Name: "Monitor", Quantity: 3, UnitPrice: 25000},
		},
	}
}

func TestValidateCreateRequest(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CreateRequestInput)
		wantErr bool
	}{
		{
			name:   "valid input",
			mutate: func(in *CreateRequestInput) {},
		},
		{
			name:    "missing requester",
			mutate:  func(in *CreateRequestInput) { in.RequesterID = "  " },
			wantErr: true,
		},
		{
			name:    "missing title",
			mutate:  func(in *CreateRequestInput) { in.Title = "" },
			wantErr: true,
		},
		{
			name:    "bad currency",
			mutate:  func(in *CreateRequestInput) { in.Currency = "DOLLARS" },
			wantErr: true,
		},
		{
			name:    "no lines",
			mutate:  func(in *CreateRequestInput) { in.Lines = nil },
			wantErr: true,
		},
		{
			name: "duplicate line numbers",
			mutate: func(in *CreateRequestInput) {
				in.Lines = append(in.Lines, &RequestLineInput{LineNumber: 1, Name: "Stand", Quantity: 1, UnitPrice: 5000})
			},
			wantErr: true,
		},
		{
			name:    "zero quantity",
			mutate:  func(in *CreateRequestInput) { in.Lines[0].Quantity = 0 },
			wantErr: true,
		},
		{
			name:    "negative unit price",
			mutate:  func(in *CreateRequestInput) { in.Lines[0].UnitPrice = -1 },
			wantErr: true,
		},
		{
			name:    "blank line name",
			mutate:  func(in *CreateRequestInput) { in.Lines[0].Name = " " },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput()
			tt.mutate(input)

			err := validateCreateRequest(input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected validation error, got nil")
				}
				if errors.Code(err) != errors.ErrCodeInvalidInput {
					t.Fatalf("expected INVALID_INPUT, got %s", errors.Code(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
