package constants

// Time Capsules event kinds (NIP-XX)
const (
	// KindTimeCapsule is for time-lock encrypted messages (public capsule, private rumor)
	KindTimeCapsule = 1041
	// KindSeal is for NIP-59 sealed events (rumor wrapped in NIP-44 encryption)
	KindSeal = 13
	// KindGiftWrap is for NIP-59 gift wrapped events (seal wrapped in ephemeral encryption)
	KindGiftWrap = 1059
)

// Time Capsules tag names (NIP-XX)
const (
	// TagTlock contains time-lock parameters in format: ["tlock", "<drand_chain_hex64>", "<drand_round_uint>"]
	TagTlock = "tlock"
	// TagAlt contains human-readable description
	TagAlt = "alt"
	// TagP contains recipient public key (for routing gift wraps)
	TagP = "p"
)

// Alt tag descriptions
const (
	AltPublicCapsule = "NIP-XX public time capsule"
	AltPrivateRumor  = "NIP-XX private time capsule rumor"
)

// Relay message labels (NIP-01)
const (
	LabelEvent  = "EVENT"
	LabelOK     = "OK"
	LabelNotice = "NOTICE"
	LabelAuth   = "AUTH"
	LabelClosed = "CLOSED"
)

// NIP-44 constants
const (
	// NIP44Version is the current NIP-44 version
	NIP44Version = 0x02
	// NIP44NonceSize is the nonce size for NIP-44 v2 (32 bytes)
	NIP44NonceSize = 32
	// NIP44MacSize is the MAC size for NIP-44 v2 (32 bytes HMAC-SHA256)
	NIP44MacSize = 32
	// NIP44MinPayloadSize is version + nonce + minimum padded ciphertext + mac
	NIP44MinPayloadSize = 1 + NIP44NonceSize + 32 + NIP44MacSize
)

// Validation limits (NIP-XX)
const (
	// MaxContentSize is the maximum size for decoded time capsule content (64 KiB, NIP-XX)
	MaxContentSize = 64 * 1024
	// MaxTlockBlobSize is the maximum size for tlock blob (4096 bytes, NIP-XX security considerations)
	MaxTlockBlobSize = 4096
	// TlockOverhead bounds the age header, tlock stanza and payload tag added to a message
	TlockOverhead = 1024
	// MaxMessageSize is the largest plaintext whose tlock blob stays within MaxTlockBlobSize
	MaxMessageSize = MaxTlockBlobSize - TlockOverhead
	// DrandChainHashLength is the expected length of drand chain hash (64 hex chars = 32 bytes)
	DrandChainHashLength = 64
	// MaxDrandRound is the maximum drand round number (2^63-1 for safety)
	MaxDrandRound = 9223372036854775807
	// KeyHexLength is the length of a hex encoded secp256k1 secret or x-only public key
	KeyHexLength = 64
)

// Error messages (NIP-XX)
const (
	ErrMissingTlockTag          = "missing tlock tag"
	ErrInvalidTlockFormat       = "invalid tlock tag format"
	ErrInvalidDrandChain        = "invalid drand chain hash format"
	ErrInvalidDrandRound        = "invalid drand round format"
	ErrContentTooLarge          = "content exceeds size limit"
	ErrInvalidBase64            = "invalid base64 content"
	ErrInvalidNIP44Version      = "invalid NIP-44 version"
	ErrNIP44PayloadTooSmall     = "NIP-44 payload too small"
	ErrEmptyTags                = "seal event must have empty tags"
	ErrMissingSealContent       = "seal event missing content"
	ErrMissingGiftWrapRecipient = "gift wrap missing recipient tag"
	ErrUnexpectedRecipientTag   = "public time capsule must not contain p tags"
	ErrInvalidEventID           = "event id does not match content"
	ErrInvalidSignature         = "invalid event signature"
	ErrTlockBlobTooLarge        = "tlock blob exceeds size limit"
	ErrAuthorMismatch           = "seal author does not match expected author"
	ErrRumorAuthorMismatch      = "rumor pubkey does not match seal pubkey"
	ErrUnexpectedKind           = "unexpected event kind"
)
