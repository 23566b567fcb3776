package interchain

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestInterchainSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Interchain Suite")
}
