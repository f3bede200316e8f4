package relay_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vehicle-relay/mazda-relay/internal/log"
)

func TestRelay(t *testing.T) {
	log.SetLevel(log.LevelNone)
	RegisterFailHandler(Fail)
	RunSpecs(t, "Relay Suite")
}
