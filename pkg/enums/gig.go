package enums

import (
	"fmt"
	"strings"
)

// GigState is the derived lifecycle state reported in gig snapshots.
type GigState string

const (
	GigStateActive    GigState = "active"
	GigStatePaused    GigState = "paused"
	GigStateCompleted GigState = "completed"
	GigStateSettled   GigState = "settled"
)

// GigRole selects which side of a gig a listing is filtered by.
type GigRole string

const (
	GigRoleClient     GigRole = "client"
	GigRoleFreelancer GigRole = "freelancer"
	GigRoleAny        GigRole = ""
)

func ParseGigRole(value string) (GigRole, error) {
	switch GigRole(strings.ToLower(strings.TrimSpace(value))) {
	case GigRoleClient:
		return GigRoleClient, nil
	case GigRoleFreelancer:
		return GigRoleFreelancer, nil
	case GigRoleAny, "any":
		return GigRoleAny, nil
	}
	return "", fmt.Errorf("invalid gig role %q", value)
}

// PayoutPolicy names who may trigger payNow.
type PayoutPolicy string

const (
	PayoutPolicyFreelancer PayoutPolicy = "freelancer"
	PayoutPolicyParties    PayoutPolicy = "parties"
	PayoutPolicyAnyone     PayoutPolicy = "anyone"
)

func ParsePayoutPolicy(value string) (PayoutPolicy, error) {
	switch PayoutPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case PayoutPolicyFreelancer, "":
		return PayoutPolicyFreelancer, nil
	case PayoutPolicyParties:
		return PayoutPolicyParties, nil
	case PayoutPolicyAnyone:
		return PayoutPolicyAnyone, nil
	}
	return "", fmt.Errorf("invalid payout policy %q", value)
}
