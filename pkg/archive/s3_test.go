package archive

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/minio"
)

func TestNewS3ArchiverRequiresBucket(t *testing.T) {
	_, err := NewS3Archiver(context.Background(), S3Config{})
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	a, err := NewS3Archiver(context.Background(), S3Config{
		Bucket:    "measurements",
		Prefix:    "/fieldfox/",
		Endpoint:  "localhost:9000",
		AccessKey: "k",
		SecretKey: "s",
	})
	require.NoError(t, err)

	s := a.(*s3Archiver)
	assert.Equal(t, "fieldfox/north.csv", s.Key("measurement_data/north.csv"))

	s.prefix = ""
	assert.Equal(t, "north.csv", s.Key("measurement_data/north.csv"))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "text/csv", contentType("a/b.csv"))
	assert.Equal(t, "application/vnd.apache.parquet", contentType("b.parquet"))
	assert.Equal(t, "application/octet-stream", contentType("b.bin"))
}

// TestUpload_Integration uploads to a MinIO container
func TestUpload_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	minioContainer, err := minio.Run(ctx,
		"minio/minio:RELEASE.2024-10-29T16-01-48Z",
		minio.WithUsername("minioadmin"),
		minio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, minioContainer.Terminate(ctx))
	}()

	endpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	bucket := "salogger-test-" + uuid.New().String()[:8]
	a, err := NewS3Archiver(ctx, S3Config{
		Bucket:    bucket,
		Prefix:    "runs",
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
	})
	require.NoError(t, err)
	require.NoError(t, EnsureBucket(ctx, a))
	require.NoError(t, EnsureBucket(ctx, a))

	local := filepath.Join(t.TempDir(), "north.csv")
	require.NoError(t, os.WriteFile(local, []byte("Create Date,20260314_092653\n"), 0644))

	key, err := a.Upload(ctx, local)
	require.NoError(t, err)
	assert.Equal(t, "runs/north.csv", key)

	obj, err := a.(*s3Archiver).client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	require.NoError(t, err)
	defer obj.Body.Close()

	body, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "Create Date,20260314_092653\n", string(body))
}
