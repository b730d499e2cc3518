package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ClaimInfo is the parsed claim submitted for a decision
type ClaimInfo struct {
	ClaimNumber         string  `json:"claim_number"`
	PolicyNumber        string  `json:"policy_number"`         // Key into the declarations corpus
	ClaimantName        string  `json:"claimant_name"`
	DateOfLoss          string  `json:"date_of_loss"`
	LossDescription     string  `json:"loss_description"`
	EstimatedRepairCost float64 `json:"estimated_repair_cost"`
	VehicleDetails      *string `json:"vehicle_details"` // Serialized as null when absent
}

// claimInput mirrors ClaimInfo with pointer fields so that a missing key can be
// told apart from an empty value.
type claimInput struct {
	ClaimNumber         *string  `json:"claim_number" validate:"required"`
	PolicyNumber        *string  `json:"policy_number" validate:"required"`
	ClaimantName        *string  `json:"claimant_name" validate:"required"`
	DateOfLoss          *string  `json:"date_of_loss" validate:"required"`
	LossDescription     *string  `json:"loss_description" validate:"required"`
	EstimatedRepairCost *float64 `json:"estimated_repair_cost" validate:"required,gte=0"`
	VehicleDetails      *string  `json:"vehicle_details"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// ParseClaimInfo decodes a single JSON claim document.
// Missing or mistyped required fields are reported as ErrValidation.
func ParseClaimInfo(data []byte) (*ClaimInfo, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty claim document", ErrValidation)
	}

	var in claimInput
	if err := json.Unmarshal(data, &in); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: field %q must be %s, got %s", ErrValidation, typeErr.Field, typeErr.Type, typeErr.Value)
		}
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrValidation, err)
	}

	if err := structValidator().Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, describeValidation(err))
	}

	return &ClaimInfo{
		ClaimNumber:         *in.ClaimNumber,
		PolicyNumber:        *in.PolicyNumber,
		ClaimantName:        *in.ClaimantName,
		DateOfLoss:          *in.DateOfLoss,
		LossDescription:     *in.LossDescription,
		EstimatedRepairCost: *in.EstimatedRepairCost,
		VehicleDetails:      in.VehicleDetails,
	}, nil
}

// JSON returns the claim serialized the way prompts receive it
func (c ClaimInfo) JSON() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("marshal claim: %w", err)
	}
	return string(data), nil
}

// describeValidation flattens validator errors into one readable line
func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("missing required field %q", fe.Field()))
		case "gte":
			parts = append(parts, fmt.Sprintf("field %q must be >= %s", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("field %q failed %q", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
