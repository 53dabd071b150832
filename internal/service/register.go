package service

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"

	"gcmrelay/internal/model"
	"gcmrelay/internal/repository"
)

// Registration failure reasons sent back to clients.
const (
	ReasonMissingKey        = "MissingKey"
	ReasonBadJSONFormat     = "BadJsonFormat"
	ReasonMissingHash       = "MissingHash"
	ReasonHashInvalid       = "HashInvalid"
	ReasonDataCorrupted     = "DataCorrupted"
	ReasonAskAuthor         = "AskAuthor"
	ReasonAreYouHacker      = "AreYouHacker"
	ReasonUnknownApp        = "UnknownApp"
	ReasonAlreadyRegistered = "AlreadyRegistered"
)

// mismatchReasons are the weighted replies for a failed hash check. Mostly
// the honest answer, occasionally something to make a tamperer wonder.
var mismatchReasons = buildMismatchReasons()

func buildMismatchReasons() []string {
	var reasons []string
	for i := 0; i < 30; i++ {
		reasons = append(reasons, ReasonHashInvalid)
	}
	for i := 0; i < 17; i++ {
		reasons = append(reasons, ReasonDataCorrupted)
	}
	reasons = append(reasons, ReasonAskAuthor, ReasonAskAuthor, ReasonAreYouHacker)
	return reasons
}

// MismatchReason picks the reply for a hash-check failure.
func MismatchReason() string {
	return mismatchReasons[rand.IntN(len(mismatchReasons))]
}

// Incrementer is the slice of the sharded counter the registration flow
// needs.
type Incrementer interface {
	Increment(ctx context.Context, name string) error
}

// RegisterService handles device registration: integrity-checked intake,
// duplicate handling, and the per-app registration counter.
type RegisterService struct {
	apps    repository.AppRepository
	devices repository.DeviceRepository
	counter Incrementer
}

func NewRegisterService(apps repository.AppRepository, devices repository.DeviceRepository, counter Incrementer) *RegisterService {
	return &RegisterService{
		apps:    apps,
		devices: devices,
		counter: counter,
	}
}

// VerifyHash checks the v2 X-Hash request integrity header:
// hex(md5(md5(timestamp) || body)), compared case-insensitively. The inner
// digest is raw bytes, not its hex form.
func VerifyHash(body []byte, timestamp, clientHash string) bool {
	inner := md5.Sum([]byte(timestamp))
	outer := md5.New()
	outer.Write(inner[:])
	outer.Write(body)
	calculated := hex.EncodeToString(outer.Sum(nil))
	return strings.EqualFold(clientHash, calculated)
}

// VerifyHashV1 checks the first-generation X-Hash header. The v1 clients
// feed the inner digest's lowercase hex string into the outer hash, not the
// raw bytes, and send the result verbatim, so the compare is exact.
func VerifyHashV1(body []byte, timestamp, clientHash string) bool {
	inner := md5.Sum([]byte(timestamp))
	outer := md5.New()
	outer.Write([]byte(hex.EncodeToString(inner[:])))
	outer.Write(body)
	calculated := hex.EncodeToString(outer.Sum(nil))
	return clientHash == calculated
}

// Register records a device registration. The returned reason is empty on
// success and one of the Reason* constants when the request is refused; err
// is reserved for storage failures.
//
// A registration id that exists disabled is re-enabled: the gateway handed
// the same id back to the device, so the old row is current again. A live
// duplicate is refused so clients that re-post don't inflate the counter.
func (s *RegisterService) Register(ctx context.Context, req *model.RegisterRequest) (reason string, err error) {
	exists, err := s.apps.Exists(ctx, req.Package)
	if err != nil {
		return "", fmt.Errorf("check app: %w", err)
	}
	if !exists {
		return ReasonUnknownApp, nil
	}

	existing, err := s.devices.GetByRegistrationID(ctx, req.RegistrationID)
	if err != nil && !errors.Is(err, model.ErrDeviceNotFound) {
		return "", fmt.Errorf("check device: %w", err)
	}
	if existing != nil {
		if existing.Enabled {
			log.Printf("[Register] Duplicate registration ignored: uuid[%s] package[%s] version[%d]",
				existing.UUID, existing.Package, existing.Version)
			return ReasonAlreadyRegistered, nil
		}
		// Same id came back after being disabled; flip it on again.
		if err := s.devices.SetEnabled(ctx, req.RegistrationID, true); err != nil {
			return "", fmt.Errorf("re-enable device: %w", err)
		}
		log.Printf("[Register] Re-enabled device for package %s", req.Package)
		return "", nil
	}

	device := &model.Device{
		RegistrationID: req.RegistrationID,
		Package:        req.Package,
		Version:        req.Version,
		UUID:           req.UUID,
		Enabled:        true,
	}
	if err := s.devices.Create(ctx, device); err != nil {
		return "", fmt.Errorf("create device: %w", err)
	}

	// First registration of this id counts toward the app's register
	// counter. A counter failure doesn't undo the registration.
	if err := s.counter.Increment(ctx, req.Package+"_register"); err != nil {
		log.Printf("[Register] Counter increment failed for %s: %v", req.Package, err)
	}

	return "", nil
}
