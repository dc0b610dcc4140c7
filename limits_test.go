package sevenzip

import "testing"

func TestCheckRatio(t *testing.T) {
	limits := DefaultResourceLimits()

	if err := limits.checkRatio(1<<10, (1<<10)*limits.MaxCompressionRatio); err != nil { //nolint:mnd
		t.Errorf("unpacked below MinRatioGuardSize: unexpected error: %v", err)
	}

	if err := limits.checkRatio(1<<20, 1<<30); err == nil { //nolint:mnd
		t.Error("tiny packed, huge unpacked: expected ResourceLimitExceededError, got nil")
	}

	huge := limits.MinRatioGuardSize
	if err := limits.checkRatio(huge, huge*(limits.MaxCompressionRatio+1)); err == nil {
		t.Error("ratio above MaxCompressionRatio: expected ResourceLimitExceededError, got nil")
	}

	if err := limits.checkRatio(huge, huge*limits.MaxCompressionRatio); err != nil {
		t.Errorf("ratio at MaxCompressionRatio: unexpected error: %v", err)
	}
}

func TestDefaultResourceLimitsNonZero(t *testing.T) {
	l := DefaultResourceLimits()

	if l.MaxKeyDerivationCycles == 0 || l.MaxHeaderRecursionDepth == 0 || l.MaxEntries == 0 ||
		l.MaxHeaderSize == 0 || l.MaxTotalUnpackedSize == 0 || l.MaxEntryUnpackedSize == 0 ||
		l.MaxCompressionRatio == 0 || l.MinRatioGuardSize == 0 || l.MaxSymlinkChainDepth == 0 {
		t.Errorf("DefaultResourceLimits has an unset field: %+v", l)
	}
}
