package memory

import (
	"testing"

	"github.com/zodiacbot/zodiacbot/internal/storage"
	"github.com/zodiacbot/zodiacbot/internal/storage/storagetest"
)

func TestStoreContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return New()
	})
}
