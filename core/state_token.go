package core

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

const (
	// StateTokenTTL is the fixed verification window. It is not configurable.
	StateTokenTTL = 10 * time.Minute

	stateTokenSeparator = ":"
	stateSignatureBytes = sha256.Size
)

var ErrStateSecretMissing = errors.New("core: state signing secret is not configured")

type StateRejection string

const (
	StateMalformed       StateRejection = "MALFORMED"
	StateSubjectMismatch StateRejection = "SUBJECT_MISMATCH"
	StateExpired         StateRejection = "EXPIRED"
	StateBadSignature    StateRejection = "BAD_SIGNATURE"
)

// Audited reports whether a rejection points at tampering or a replay against
// another user rather than an honest mistake.
func (r StateRejection) Audited() bool {
	return r == StateSubjectMismatch || r == StateBadSignature
}

type StateVerification struct {
	OK        bool
	Reason    StateRejection
	SubjectID string
	IssuedAt  time.Time
}

// StateTokenCodec issues and verifies subject-bound CSRF state tokens of the
// form subjectId:issuedAtMillis:hexSignature. Tokens are never persisted.
type StateTokenCodec struct {
	secret   []byte
	clock    Clock
	unsigned bool
	logger   Logger
}

type StateCodecOption func(*StateTokenCodec)

func WithStateClock(clock Clock) StateCodecOption {
	return func(c *StateTokenCodec) {
		if clock != nil {
			c.clock = clock
		}
	}
}

func WithStateLogger(logger Logger) StateCodecOption {
	return func(c *StateTokenCodec) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithUnsignedState permits a codec without a signing secret. Signature
// checks are skipped and every verification logs a warning. Only local
// development configurations should ever pass it.
func WithUnsignedState() StateCodecOption {
	return func(c *StateTokenCodec) {
		c.unsigned = true
	}
}

func NewStateTokenCodec(secret string, opts ...StateCodecOption) (*StateTokenCodec, error) {
	codec := &StateTokenCodec{
		secret: []byte(strings.TrimSpace(secret)),
		clock:  systemClock,
		logger: glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(codec)
		}
	}
	if len(codec.secret) > 0 {
		codec.unsigned = false
		return codec, nil
	}
	if !codec.unsigned {
		return nil, ErrStateSecretMissing
	}
	codec.logger.Warn("oauth state signing is disabled: no signing secret configured, CSRF protection is off")
	return codec, nil
}

// NewStateTokenCodecFromConfig applies the config's secret and the
// development-only unsigned flag.
func NewStateTokenCodecFromConfig(cfg Config, opts ...StateCodecOption) (*StateTokenCodec, error) {
	var base []StateCodecOption
	if cfg.UnsignedStateAllowed() {
		base = append(base, WithUnsignedState())
	}
	return NewStateTokenCodec(cfg.State.SigningSecret, append(base, opts...)...)
}

func (c *StateTokenCodec) Unsigned() bool {
	return c != nil && c.unsigned
}

func (c *StateTokenCodec) Issue(subjectID string) (string, error) {
	if c == nil {
		return "", fmt.Errorf("core: state codec is not configured")
	}
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return "", fmt.Errorf("core: state subject is required")
	}
	if strings.Contains(subjectID, stateTokenSeparator) {
		return "", fmt.Errorf("core: state subject must not contain %q", stateTokenSeparator)
	}
	issuedAt := strconv.FormatInt(c.clock().UnixMilli(), 10)
	signature := c.sign(subjectID, issuedAt)
	return subjectID + stateTokenSeparator + issuedAt + stateTokenSeparator + hex.EncodeToString(signature), nil
}

// Verify checks structure, subject, freshness and signature in that order and
// reports the first failure.
func (c *StateTokenCodec) Verify(token string, expectedSubjectID string) StateVerification {
	if c == nil {
		return StateVerification{Reason: StateMalformed}
	}
	parts := strings.Split(token, stateTokenSeparator)
	if len(parts) != 3 {
		return StateVerification{Reason: StateMalformed}
	}
	subjectID, rawIssuedAt, rawSignature := parts[0], parts[1], parts[2]
	if subjectID == "" || !isDecimal(rawIssuedAt) {
		return StateVerification{Reason: StateMalformed}
	}
	issuedAtMillis, err := strconv.ParseInt(rawIssuedAt, 10, 64)
	if err != nil {
		return StateVerification{Reason: StateMalformed}
	}
	if rawSignature == "" {
		return StateVerification{Reason: StateMalformed}
	}

	result := StateVerification{
		SubjectID: subjectID,
		IssuedAt:  time.UnixMilli(issuedAtMillis).UTC(),
	}
	if subjectID != expectedSubjectID {
		result.Reason = StateSubjectMismatch
		return result
	}
	if c.clock().UnixMilli()-issuedAtMillis > StateTokenTTL.Milliseconds() {
		result.Reason = StateExpired
		return result
	}
	if c.unsigned {
		c.logger.Warn("oauth state signature not verified: signing secret missing", "subject_id", TruncateIdentifier(subjectID))
		result.OK = true
		return result
	}
	// Compare the canonical lowercase encoding so that any edit to the
	// signature text, including a case change, is rejected.
	expected := hex.EncodeToString(c.sign(subjectID, rawIssuedAt))
	if len(rawSignature) != stateSignatureBytes*2 || !hmac.Equal([]byte(rawSignature), []byte(expected)) {
		result.Reason = StateBadSignature
		return result
	}
	result.OK = true
	return result
}

func (c *StateTokenCodec) sign(subjectID string, issuedAt string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(subjectID + stateTokenSeparator + issuedAt))
	return mac.Sum(nil)
}

func isDecimal(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
