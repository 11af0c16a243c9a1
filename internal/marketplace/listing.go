// Package marketplace implements skill listings and the purchase split.
//
// Like the reputation package it is a pure state-transition engine: the
// purchase path takes the listing, the buyer, the author, and the author's
// current backers, and returns updated copies plus fund moves. The 60/40
// split and the proportional pool distribution are exact integer arithmetic
// and must not be adjusted.
package marketplace

import (
	"fmt"
	"time"

	apperrors "github.com/louisbranch/vouchnet/internal/errors"
	"github.com/louisbranch/vouchnet/internal/id"
)

// Bounds on listing metadata.
const (
	MaxSkillURILen    = 256
	MaxNameLen        = 64
	MaxDescriptionLen = 256
)

// SkillStatus describes the lifecycle of a listing.
type SkillStatus int

const (
	// SkillStatusUnspecified represents an invalid listing status value.
	SkillStatusUnspecified SkillStatus = iota
	// SkillStatusActive indicates the listing is purchasable.
	SkillStatusActive
	// SkillStatusSuspended indicates the listing is temporarily withheld.
	SkillStatusSuspended
	// SkillStatusRemoved indicates the listing is permanently gone. Terminal.
	SkillStatusRemoved
)

// String returns the lowercase status name used in storage and tool output.
func (s SkillStatus) String() string {
	switch s {
	case SkillStatusActive:
		return "active"
	case SkillStatusSuspended:
		return "suspended"
	case SkillStatusRemoved:
		return "removed"
	default:
		return "unspecified"
	}
}

// ParseSkillStatus maps a stored or tool-supplied status name to its value.
func ParseSkillStatus(value string) SkillStatus {
	switch value {
	case "active":
		return SkillStatusActive
	case "suspended":
		return SkillStatusSuspended
	case "removed":
		return SkillStatusRemoved
	default:
		return SkillStatusUnspecified
	}
}

var (
	// ErrSkillURITooLong indicates an oversized skill URI.
	ErrSkillURITooLong = apperrors.New(apperrors.CodeSkillURITooLong, "skill uri is too long")
	// ErrNameEmpty indicates a missing skill name.
	ErrNameEmpty = apperrors.New(apperrors.CodeSkillNameEmpty, "skill name is required")
	// ErrNameTooLong indicates an oversized skill name.
	ErrNameTooLong = apperrors.New(apperrors.CodeSkillNameTooLong, "skill name is too long")
	// ErrDescriptionTooLong indicates an oversized skill description.
	ErrDescriptionTooLong = apperrors.New(apperrors.CodeSkillDescriptionTooLong, "skill description is too long")
	// ErrPriceZero indicates a listing priced at zero.
	ErrPriceZero = apperrors.New(apperrors.CodeSkillPriceZero, "skill price must be greater than zero")
	// ErrSkillNotActive indicates a purchase against a non-active listing.
	ErrSkillNotActive = apperrors.New(apperrors.CodeSkillNotActive, "skill listing is not active")
	// ErrStatusInvalid indicates an unrecognized target status.
	ErrStatusInvalid = apperrors.New(apperrors.CodeSkillStatusInvalid, "skill status is not valid")
	// ErrSkillRemoved indicates a status change on a removed listing.
	ErrSkillRemoved = apperrors.New(apperrors.CodeSkillRemoved, "skill listing was removed")
	// ErrAuthorOnly indicates a listing mutation by a non-author caller.
	ErrAuthorOnly = apperrors.New(apperrors.CodeSkillAuthorOnly, "only the author may modify the listing")
	// ErrCounterOverflow indicates a listing counter past its numeric bound.
	// At realistic volume this signals a modeling bug, so it is fatal.
	ErrCounterOverflow = apperrors.New(apperrors.CodeSkillCounterOverflow, "listing counter overflow")
)

// SkillListing is a purchasable skill published by a vouched agent.
type SkillListing struct {
	ID          string
	Author      string
	SkillURI    string
	Name        string
	Description string
	Price       uint64
	// TotalDownloads counts purchases; TotalRevenue sums list prices.
	TotalDownloads uint64
	TotalRevenue   uint64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Status         SkillStatus
	Version        int64
}

// NewSkillListing validates metadata and returns an Active listing with
// zeroed counters.
func NewSkillListing(author, skillURI, name, description string, price uint64, now func() time.Time, idGenerator func() (string, error)) (SkillListing, error) {
	if now == nil {
		now = time.Now
	}
	if idGenerator == nil {
		idGenerator = id.NewID
	}
	if len(skillURI) > MaxSkillURILen {
		return SkillListing{}, ErrSkillURITooLong
	}
	if name == "" {
		return SkillListing{}, ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return SkillListing{}, ErrNameTooLong
	}
	if len(description) > MaxDescriptionLen {
		return SkillListing{}, ErrDescriptionTooLong
	}
	if price == 0 {
		return SkillListing{}, ErrPriceZero
	}

	listingID, err := idGenerator()
	if err != nil {
		return SkillListing{}, fmt.Errorf("generate listing id: %w", err)
	}

	createdAt := now().UTC()
	return SkillListing{
		ID:          listingID,
		Author:      author,
		SkillURI:    skillURI,
		Name:        name,
		Description: description,
		Price:       price,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
		Status:      SkillStatusActive,
	}, nil
}

// SetListingStatus moves a listing between Active and Suspended or removes
// it. Removal is terminal.
func SetListingStatus(listing SkillListing, caller string, target SkillStatus, now func() time.Time) (SkillListing, error) {
	if now == nil {
		now = time.Now
	}
	if caller != listing.Author {
		return SkillListing{}, ErrAuthorOnly
	}
	if listing.Status == SkillStatusRemoved {
		return SkillListing{}, ErrSkillRemoved
	}
	switch target {
	case SkillStatusActive, SkillStatusSuspended, SkillStatusRemoved:
	default:
		return SkillListing{}, ErrStatusInvalid
	}

	listing.Status = target
	listing.UpdatedAt = now().UTC()
	return listing, nil
}
