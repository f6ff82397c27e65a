package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ILLUVRSE/gateway/validator-gateway/internal/audit"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/auth"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/imaging"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/models"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/signing"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/spoof"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/validator"
	"github.com/ILLUVRSE/gateway/validator-gateway/internal/verdict"
)

// Source values for ForwardInput.
const (
	SourceUpload = "upload"
	SourceJSON   = "json"
	SourceBase64 = "base64"
)

type Service struct {
	signer        signing.Signer
	validator     validator.Client
	recorder      *audit.Recorder
	issuer        *auth.Issuer
	spoof         *spoof.Generator
	threshold     float64
	imageLimits   imaging.Limits
	authorization string
}

type Config struct {
	// Threshold is the per-score cutoff for the majority vote.
	Threshold float64
	// Issuer is optional; when set, credentials carry a token.
	Issuer *auth.Issuer
	// Spoof defaults to a time-seeded generator.
	Spoof *spoof.Generator
	// ImageLimits bounds upload decoding; zero fields use imaging.DefaultLimits.
	ImageLimits imaging.Limits
}

// New wires the service. recorder may be nil, in which case nothing is audited.
func New(signer signing.Signer, client validator.Client, recorder *audit.Recorder, cfg Config) *Service {
	gen := cfg.Spoof
	if gen == nil {
		gen = spoof.New()
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = verdict.DefaultThreshold
	}
	return &Service{
		signer:        signer,
		validator:     client,
		recorder:      recorder,
		issuer:        cfg.Issuer,
		spoof:         gen,
		threshold:     threshold,
		imageLimits:   cfg.ImageLimits,
		authorization: base64.StdEncoding.EncodeToString(signer.PublicKey()),
	}
}

// Authorization is the value sent upstream as "authorization": the base64 of
// the raw public key.
func (s *Service) Authorization() string {
	return s.authorization
}

// IssueCredentials signs the fixed credential message. uid and postfix are only
// used for the optional token and the audit record.
func (s *Service) IssueCredentials(ctx context.Context, uid int, postfix string) (models.SignedMessage, error) {
	const op = "issue credentials"
	sig, err := s.signer.Sign(ctx, []byte(models.CredentialMessage))
	if err != nil {
		return models.SignedMessage{}, newError(KindInternal, op, err)
	}
	out := models.SignedMessage{
		Message:   models.CredentialMessage,
		Signature: base64.StdEncoding.EncodeToString(sig),
		SignerID:  s.signer.SignerID(),
	}
	if s.issuer != nil {
		tok, err := s.issuer.Issue(uid, postfix)
		if err != nil {
			return models.SignedMessage{}, newError(KindInternal, op, err)
		}
		out.Token = tok
	}

	s.record(ctx, audit.EventCredentialsIssued, map[string]interface{}{
		"uid":         uid,
		"postfix":     postfix,
		"signerId":    out.SignerID,
		"tokenIssued": out.Token != "",
	}, nil)
	return out, nil
}

// CheckImage returns a random classification. The image is not inspected.
func (s *Service) CheckImage() models.SpoofResult {
	return s.spoof.Generate()
}

// ForwardInput carries the image either as upload bytes (Raw, with
// Source == SourceUpload) or as a caller-provided base64 string (Image).
// Uploads are decoded and re-encoded; strings are forwarded unchanged, even
// when empty.
type ForwardInput struct {
	Image  string
	Raw    []byte
	Source string
}

// ForwardImage sends the image to the validator and reduces its scores to a
// majority verdict.
func (s *Service) ForwardImage(ctx context.Context, in ForwardInput) (models.ForwardResult, error) {
	const op = "forward image"

	image := in.Image
	raw := in.Raw
	if in.Source == SourceUpload || len(raw) > 0 {
		encoded, _, err := imaging.ReencodeBase64(raw, s.imageLimits)
		if err != nil {
			verr := ValidationError(op, "file", "uploaded file is not a supported image", "value_error.image")
			verr.Err = err
			return models.ForwardResult{}, verr
		}
		image = encoded
	} else if image != "" {
		// Best effort: the archive stores decoded bytes when the string is valid base64.
		if decoded, err := base64.StdEncoding.DecodeString(image); err == nil {
			raw = decoded
		}
	}

	digest := sha256.Sum256([]byte(image))
	base := map[string]interface{}{
		"source":      in.Source,
		"imageSha256": hex.EncodeToString(digest[:]),
		"imageBytes":  len(image),
	}

	start := time.Now()
	resp, err := s.validator.Score(ctx, models.ForwardRequest{
		Image:         image,
		Authorization: s.authorization,
	})
	if err != nil {
		kind := KindOf(err)
		if kind != KindUpstreamMalformed {
			kind = KindUpstreamUnreachable
		}
		log.Printf("[service] forward failed (%s) after %s: %v", kind, time.Since(start), err)
		base["error"] = err.Error()
		base["kind"] = kind.String()
		s.record(ctx, audit.EventForwardFailed, base, raw)
		return models.ForwardResult{}, newError(kind, op, err)
	}

	decision := verdict.Majority(resp.Scores, s.threshold)
	result := models.ForwardResult{
		Predictions: resp.Scores,
		AIGenerated: decision,
		Prediction:  verdict.AsInt(decision),
		Status:      resp.Status,
	}

	base["predictions"] = resp.Scores
	base["ai-generated"] = decision
	base["prediction"] = result.Prediction
	base["threshold"] = s.threshold
	base["upstreamStatus"] = resp.Status
	s.record(ctx, audit.EventImageForwarded, base, raw)
	return result, nil
}

// AuditEvent returns a recorded event by id.
func (s *Service) AuditEvent(ctx context.Context, id string) (*audit.Event, error) {
	const op = "get audit event"
	if s.recorder == nil {
		return nil, newError(KindNotFound, op, audit.ErrNotFound)
	}
	ev, err := s.recorder.Store().GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			return nil, newError(KindNotFound, op, err)
		}
		return nil, newError(KindInternal, op, err)
	}
	return ev, nil
}

// Health reports whether the audit store is reachable.
func (s *Service) Health(ctx context.Context) error {
	if s.recorder == nil {
		return nil
	}
	if err := s.recorder.Store().Ping(ctx); err != nil {
		return fmt.Errorf("audit store: %w", err)
	}
	return nil
}

// record appends an audit event. Failures never reach the caller.
func (s *Service) record(ctx context.Context, eventType string, payload map[string]interface{}, image []byte) {
	if s.recorder == nil {
		return
	}
	if _, err := s.recorder.Record(ctx, eventType, payload, image); err != nil {
		log.Printf("[service] audit %s failed: %v", eventType, err)
	}
}
