package storage

import (
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrainRemoveErrors_KeepsFirstFailure(t *testing.T) {
	errs := make(chan minio.RemoveObjectError, 3)
	errs <- minio.RemoveObjectError{ObjectName: "a.webp"}
	errs <- minio.RemoveObjectError{ObjectName: "b.webp", Err: errors.New("access denied")}
	errs <- minio.RemoveObjectError{ObjectName: "c.webp", Err: errors.New("timeout")}
	close(errs)

	err := drainRemoveErrors(errs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "b.webp")
	assert.Len(t, errs, 0, "the channel must be consumed to completion, not abandoned at the first error")
}

func TestDrainRemoveErrors_AllRemoved(t *testing.T) {
	errs := make(chan minio.RemoveObjectError, 2)
	errs <- minio.RemoveObjectError{ObjectName: "a.webp"}
	errs <- minio.RemoveObjectError{ObjectName: "b.webp"}
	close(errs)

	assert.NoError(t, drainRemoveErrors(errs))
}
