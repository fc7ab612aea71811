// Package fingerprint computes content digests for processed-file tracking.
// The digest is a change-detection checksum, not a security primitive: any
// byte change in a source file must produce a different digest so the ledger
// reprocesses it on the next run.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"io"

	"github.com/sensorflow/sensorflow/internal/model"
	"github.com/sensorflow/sensorflow/internal/pool"
	sferrors "github.com/sensorflow/sensorflow/pkg/errors"
)

var copyBuffers = pool.NewBufferPool(pool.DefaultBufferSize)

// Hash returns the hex MD5 digest of the file's byte content. For archived
// entries the named member is streamed out of the ZIP without extracting the
// rest of the archive.
func Hash(fd model.FileDescriptor) (string, error) {
	rc, err := fd.Open()
	if err != nil {
		return "", sferrors.FileUnreadable(fd.Identity(), err)
	}
	defer rc.Close()

	buf := copyBuffers.Get()
	defer copyBuffers.Put(buf)

	h := md5.New()
	if _, err := io.CopyBuffer(h, rc, *buf); err != nil {
		return "", sferrors.FileUnreadable(fd.Identity(), err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
