package media

import (
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"

	"github.com/familiar-chat/mediagate/internal/database/models"
)

const (
	tokenLength   = 8
	tokenAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
)

var (
	ErrUnknownKind = errors.New("unknown owner kind")
	ErrInvalidName = errors.New("invalid file name")

	fileNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
)

// TokenFunc draws the random suffix of a randomized slot.
type TokenFunc func() (string, error)

// RandomToken returns eight characters from [0-9a-z], about 2.8e12 values.
func RandomToken() (string, error) {
	out := make([]byte, 0, tokenLength)
	buf := make([]byte, tokenLength*2)
	// 252 is the largest multiple of 36 below 256; higher bytes are redrawn
	// so every character is uniform.
	for len(out) < tokenLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= 252 {
				continue
			}
			out = append(out, tokenAlphabet[int(b)%len(tokenAlphabet)])
			if len(out) == tokenLength {
				break
			}
		}
	}
	return string(out), nil
}

// Deterministic reports whether kind has exactly one slot per owner.
func Deterministic(kind models.OwnerKind) bool {
	return kind == models.OwnerSite || kind == models.OwnerUser
}

// CategoryOf returns the media category an owner kind accepts.
func CategoryOf(kind models.OwnerKind) Category {
	if kind == models.OwnerDocumentVideo {
		return CategoryVideo
	}
	return CategoryImage
}

// Policy computes storage paths for uploaded assets.
type Policy struct {
	token TokenFunc
}

func NewPolicy(token TokenFunc) *Policy {
	if token == nil {
		token = RandomToken
	}
	return &Policy{token: token}
}

// UploadPath returns the path a new asset is written to. Deterministic kinds
// always return the same path for the same owner; the others append a fresh
// random token on every call.
func (p *Policy) UploadPath(organizationID string, kind models.OwnerKind, ownerID string) (string, error) {
	prefix, err := familyPrefix(organizationID, kind, ownerID)
	if err != nil {
		return "", err
	}

	switch kind {
	case models.OwnerSite:
		return prefix + "/widget", nil
	case models.OwnerUser:
		return prefix + "/avatar", nil
	}

	token, err := p.token()
	if err != nil {
		return "", err
	}
	return prefix + "/" + token, nil
}

// DeletePath re-derives the path of a randomized-slot asset from the file
// name segment the caller supplied.
func (p *Policy) DeletePath(organizationID string, kind models.OwnerKind, ownerID, name string) (string, error) {
	if Deterministic(kind) {
		return "", fmt.Errorf("%w: %s has no named slots", ErrUnknownKind, kind)
	}
	if !fileNamePattern.MatchString(name) {
		return "", ErrInvalidName
	}

	prefix, err := familyPrefix(organizationID, kind, ownerID)
	if err != nil {
		return "", err
	}
	return prefix + "/" + name, nil
}

func familyPrefix(organizationID string, kind models.OwnerKind, ownerID string) (string, error) {
	if organizationID == "" {
		return "", fmt.Errorf("%w: empty organization", ErrUnknownKind)
	}
	org := "organizations/" + organizationID

	switch kind {
	case models.OwnerSite:
		if ownerID == "" {
			return "", fmt.Errorf("%w: site id required", ErrUnknownKind)
		}
		return org + "/sites/" + ownerID, nil
	case models.OwnerUser:
		if ownerID == "" {
			return "", fmt.Errorf("%w: user id required", ErrUnknownKind)
		}
		return org + "/users/" + ownerID, nil
	case models.OwnerVisitorMessage, models.OwnerVisitorReceivedMessage:
		if ownerID == "" {
			return "", fmt.Errorf("%w: visitor id required", ErrUnknownKind)
		}
		return org + "/visitors/" + ownerID, nil
	case models.OwnerDocumentImage:
		return org + "/documents/images", nil
	case models.OwnerDocumentVideo:
		return org + "/documents/videos", nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}
