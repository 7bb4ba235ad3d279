package capsule

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strconv"

	"github.com/Shugur-Network/capsule-validator/internal/constants"
	"github.com/Shugur-Network/capsule-validator/internal/errors"
	"github.com/nbd-wtf/go-nostr"
)

var (
	hex64Pattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
	roundPattern = regexp.MustCompile(`^[1-9][0-9]{0,18}$`)
)

// TlockTag is a parsed ["tlock", chain, round] tag.
type TlockTag struct {
	ChainHash string
	Round     uint64
}

// Tag renders the tag in wire form.
func (t TlockTag) Tag() nostr.Tag {
	return nostr.Tag{constants.TagTlock, t.ChainHash, strconv.FormatUint(t.Round, 10)}
}

// ParseTlockTag finds and validates the tlock tag of evt.
func ParseTlockTag(evt *nostr.Event) (TlockTag, error) {
	tag := findTag(evt.Tags, constants.TagTlock)
	if tag == nil {
		return TlockTag{}, errors.InvalidTag(constants.TagTlock, constants.ErrMissingTlockTag)
	}
	if len(tag) != 3 {
		return TlockTag{}, errors.InvalidTag(constants.TagTlock,
			fmt.Sprintf("%s: expected 3 elements, got %d", constants.ErrInvalidTlockFormat, len(tag)))
	}
	if !hex64Pattern.MatchString(tag[1]) {
		return TlockTag{}, errors.InvalidTag(constants.TagTlock,
			fmt.Sprintf("%s: must be %d lowercase hex characters", constants.ErrInvalidDrandChain, constants.DrandChainHashLength))
	}
	if !roundPattern.MatchString(tag[2]) {
		return TlockTag{}, errors.InvalidTag(constants.TagTlock, constants.ErrInvalidDrandRound+": must be positive integer")
	}
	round, err := strconv.ParseUint(tag[2], 10, 64)
	if err != nil || round > constants.MaxDrandRound {
		return TlockTag{}, errors.InvalidTag(constants.TagTlock, constants.ErrInvalidDrandRound+": out of range")
	}
	return TlockTag{ChainHash: tag[1], Round: round}, nil
}

// ValidateTimeCapsule applies the relay rules for kind 1041: base64 content
// within size limits, a well formed tlock tag and no p tag.
func ValidateTimeCapsule(evt *nostr.Event) error {
	if evt.Kind != constants.KindTimeCapsule {
		return errors.InvalidEvent(evt.ID, fmt.Sprintf("%s: expected %d, got %d", constants.ErrUnexpectedKind, constants.KindTimeCapsule, evt.Kind))
	}
	if _, err := decodeBlob(evt); err != nil {
		return err
	}
	if _, err := ParseTlockTag(evt); err != nil {
		return err
	}
	if findTag(evt.Tags, constants.TagP) != nil {
		return errors.InvalidTag(constants.TagP, constants.ErrUnexpectedRecipientTag)
	}
	return nil
}

// ValidateSeal checks a kind 13 seal: no tags and a NIP-44 payload.
func ValidateSeal(evt *nostr.Event) error {
	if evt.Kind != constants.KindSeal {
		return errors.InvalidEvent(evt.ID, fmt.Sprintf("%s: expected %d, got %d", constants.ErrUnexpectedKind, constants.KindSeal, evt.Kind))
	}
	if len(evt.Tags) != 0 {
		return errors.InvalidEvent(evt.ID, constants.ErrEmptyTags)
	}
	if evt.Content == "" {
		return errors.InvalidEvent(evt.ID, constants.ErrMissingSealContent)
	}
	return validateNIP44(evt)
}

// ValidateGiftWrap checks a kind 1059 wrap and returns its recipient.
func ValidateGiftWrap(evt *nostr.Event) (string, error) {
	if evt.Kind != constants.KindGiftWrap {
		return "", errors.InvalidEvent(evt.ID, fmt.Sprintf("%s: expected %d, got %d", constants.ErrUnexpectedKind, constants.KindGiftWrap, evt.Kind))
	}
	tag := findTag(evt.Tags, constants.TagP)
	if tag == nil || len(tag) < 2 {
		return "", errors.InvalidTag(constants.TagP, constants.ErrMissingGiftWrapRecipient)
	}
	if !hex64Pattern.MatchString(tag[1]) {
		return "", errors.InvalidTag(constants.TagP, "invalid pubkey in p tag")
	}
	if evt.CreatedAt == 0 {
		return "", errors.InvalidEvent(evt.ID, "gift wrap must have created_at timestamp")
	}
	if err := validateNIP44(evt); err != nil {
		return "", err
	}
	return tag[1], nil
}

func decodeBlob(evt *nostr.Event) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(evt.Content)
	if err != nil {
		return nil, errors.InvalidEvent(evt.ID, fmt.Sprintf("%s: %v", constants.ErrInvalidBase64, err))
	}
	if len(blob) > constants.MaxContentSize {
		return nil, errors.InvalidEvent(evt.ID, fmt.Sprintf("%s: %d bytes exceeds %d limit", constants.ErrContentTooLarge, len(blob), constants.MaxContentSize))
	}
	if len(blob) > constants.MaxTlockBlobSize {
		return nil, errors.InvalidEvent(evt.ID, fmt.Sprintf("%s: %d bytes exceeds %d limit", constants.ErrTlockBlobTooLarge, len(blob), constants.MaxTlockBlobSize))
	}
	return blob, nil
}

func validateNIP44(evt *nostr.Event) error {
	payload, err := base64.StdEncoding.DecodeString(evt.Content)
	if err != nil {
		return errors.InvalidEvent(evt.ID, fmt.Sprintf("%s: %v", constants.ErrInvalidBase64, err))
	}
	if len(payload) < constants.NIP44MinPayloadSize {
		return errors.InvalidEvent(evt.ID, fmt.Sprintf("%s: %d bytes", constants.ErrNIP44PayloadTooSmall, len(payload)))
	}
	if payload[0] != constants.NIP44Version {
		return errors.InvalidEvent(evt.ID, fmt.Sprintf("%s: %d", constants.ErrInvalidNIP44Version, payload[0]))
	}
	return nil
}

func findTag(tags nostr.Tags, name string) nostr.Tag {
	for _, tag := range tags {
		if len(tag) > 0 && tag[0] == name {
			return tag
		}
	}
	return nil
}
