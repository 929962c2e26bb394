// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	err := New(KindValidation, "port out of range")
	assert.Equal(t, "port out of range", err.Error())

	wrapped := Wrap(err, KindInternal, "failed to apply config")
	assert.Equal(t, "failed to apply config: port out of range", wrapped.Error())
	assert.True(t, Is(wrapped, err))
}

func TestWrapNil(t *testing.T) {
	assert.NoError(t, Wrap(nil, KindInternal, "unused"))
	assert.NoError(t, Wrapf(nil, KindInternal, "unused %d", 1))
	assert.NoError(t, Attr(nil, "k", "v"))
}

func TestGetKind(t *testing.T) {
	err := Errorf(KindNotFound, "map %s not found", "drop_port")
	assert.Equal(t, KindNotFound, GetKind(err))

	wrapped := Wrapf(err, KindUnavailable, "attach to %s", "eth0")
	assert.Equal(t, KindUnavailable, GetKind(wrapped))

	assert.Equal(t, KindUnknown, GetKind(errors.New("plain")))
}

func TestAttributes(t *testing.T) {
	err := New(KindValidation, "invalid port")
	err = Attr(err, "field", "blocked_port")
	err = Attr(err, "value", 70000)

	attrs := GetAttributes(err)
	assert.Equal(t, "blocked_port", attrs["field"])
	assert.Equal(t, 70000, attrs["value"])

	wrapped := Attr(Wrap(err, KindInternal, "load"), "path", "/etc/portgate/portgate.hcl")
	all := GetAttributes(wrapped)
	assert.Equal(t, "blocked_port", all["field"])
	assert.Equal(t, "/etc/portgate/portgate.hcl", all["path"])
}

func TestAttrOnPlainError(t *testing.T) {
	err := Attr(errors.New("netlink: no such device"), "interface", "eth9")
	assert.Equal(t, KindInternal, GetKind(err))
	assert.Equal(t, "eth9", GetAttributes(err)["interface"])
}

func TestLogArgs(t *testing.T) {
	err := Attr(New(KindNotFound, "missing"), "map", "drop_port")
	args := LogArgs(err)
	assert.Equal(t, []any{"map", "drop_port", "error", err}, args)
}
