package services

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeCloser struct {
	err    error
	closed bool
}

func (c *fakeCloser) Close() error {
	c.closed = true
	return c.err
}

func TestDependencies_CloseReleasesEveryClient(t *testing.T) {
	first := &fakeCloser{}
	failing := &fakeCloser{err: errors.New("firestore: close failed")}
	last := &fakeCloser{err: errors.New("workflows: close failed")}
	deps := Dependencies{Closers: []io.Closer{first, failing, last}}

	err := deps.Close()

	assert.True(t, first.closed)
	assert.True(t, failing.closed)
	assert.True(t, last.closed)
	assert.ErrorIs(t, err, failing.err)
	assert.ErrorIs(t, err, last.err)
}

func TestDependencies_CloseWithoutClients(t *testing.T) {
	assert.NoError(t, Dependencies{}.Close())
}
