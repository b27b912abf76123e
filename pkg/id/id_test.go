package id

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSettlementReference(t *testing.T) {
	now := time.Unix(1700000000, 0)
	ref := SettlementReference(now)

	assert.Regexp(t, regexp.MustCompile(`^STL1700000000[A-Z0-9]{6}$`), ref)
	assert.NotEqual(t, ref, SettlementReference(now))
}

func TestReferencePrefix(t *testing.T) {
	now := time.Unix(1700000000, 0)
	assert.Regexp(t, regexp.MustCompile(`^RFD1700000000[A-Z0-9]{6}$`), Reference("RFD", now))
	assert.Regexp(t, regexp.MustCompile(`^DEP1700000000[A-Z0-9]{6}$`), Reference("DEP", now))
}
