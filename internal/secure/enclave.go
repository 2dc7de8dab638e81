package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned by Open after Destroy.
var ErrDestroyed = errors.New("secure buffer has been destroyed")

// ErrEmpty is returned by NewSecureBuffer for empty input.
var ErrEmpty = errors.New("secure buffer requires non-empty data")

// SecureBuffer holds a secret encrypted in a memguard enclave.
type SecureBuffer struct {
	enclave   *memguard.Enclave
	mu        sync.RWMutex
	destroyed bool
}

// NewSecureBuffer moves data into an enclave and wipes data.
func NewSecureBuffer(data []byte) (*SecureBuffer, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	return &SecureBuffer{
		enclave: memguard.NewEnclave(data),
	}, nil
}

// Open decrypts the secret into a locked buffer. The caller must Destroy it.
func (s *SecureBuffer) Open() (*memguard.LockedBuffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed {
		return nil, ErrDestroyed
	}
	return s.enclave.Open()
}

// Destroy drops the enclave. It is safe to call more than once.
func (s *SecureBuffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enclave = nil
	s.destroyed = true
}
