package objectstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/boddenberg/charter-leads-bfa/internal/domain"
	"github.com/boddenberg/charter-leads-bfa/internal/infra/objectstore"
)

func TestObjectKey(t *testing.T) {
	at := time.Date(2026, 3, 7, 23, 30, 0, 0, time.FixedZone("BRT", -3*3600))

	assert.Equal(t, "pages/u1/2026/03/08/abc.html", objectstore.ObjectKey("u1", at, "abc", "text/html; charset=utf-8"))
	assert.Equal(t, "pages/anonymous/2026/03/08/abc.txt", objectstore.ObjectKey("", at, "abc", "text/plain; charset=utf-8"))
}

func TestNew_RequiresEndpoint(t *testing.T) {
	_, err := objectstore.New(context.Background(), objectstore.Config{Bucket: "pages"}, zap.NewNop())

	var nc *domain.ErrNotConfigured
	assert.True(t, errors.As(err, &nc))
}
