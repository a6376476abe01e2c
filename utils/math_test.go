package utils

import (
	"testing"

	"go.viam.com/test"
)

func TestAbsInt(t *testing.T) {
	test.That(t, AbsInt(-4), test.ShouldEqual, 4)
	test.That(t, AbsInt(4), test.ShouldEqual, 4)
	test.That(t, AbsInt(0), test.ShouldEqual, 0)
}

func TestClampF64(t *testing.T) {
	test.That(t, ClampF64(5, 0, 10), test.ShouldEqual, 5)
	test.That(t, ClampF64(-5, 0, 10), test.ShouldEqual, 0)
	test.That(t, ClampF64(15, 0, 10), test.ShouldEqual, 10)
}

func TestClampInt(t *testing.T) {
	test.That(t, ClampInt(5, 0, 10), test.ShouldEqual, 5)
	test.That(t, ClampInt(-5, 0, 10), test.ShouldEqual, 0)
	test.That(t, ClampInt(15, 0, 10), test.ShouldEqual, 10)
}
