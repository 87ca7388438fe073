package storage

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transcript struct {
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

func TestTranscriptKey(t *testing.T) {
	at := time.Date(2026, 3, 7, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, "generations/2026/03/07/trigger-42.json", TranscriptKey(at, 42))
}

func TestLocal_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, Options{Type: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)

	in := transcript{Prompt: "p", Response: "r"}
	require.NoError(t, s.Save(ctx, "generations/2026/03/07/trigger-1.json", in))

	var out transcript
	require.NoError(t, s.Load(ctx, "generations/2026/03/07/trigger-1.json", &out))
	assert.Equal(t, in, out)

	assert.ErrorIs(t, s.Load(ctx, "missing.json", &out), ErrNotFound)
	assert.Error(t, s.Save(ctx, "../escape.json", in))
}

func TestNop(t *testing.T) {
	s, err := New(context.Background(), Options{})
	require.NoError(t, err)
	assert.NoError(t, s.Save(context.Background(), "k", 1))
	assert.ErrorIs(t, s.Load(context.Background(), "k", new(int)), ErrNotFound)

	_, err = New(context.Background(), Options{Type: "gcs"})
	assert.Error(t, err)
}

type fakeS3 struct {
	objects map[string][]byte
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, _ := io.ReadAll(in.Body)
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3_SaveLoadWithPrefix(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: map[string][]byte{}}
	s := &S3{client: fake, bucket: "crm-archive", prefix: "prod"}

	require.NoError(t, s.Save(ctx, "generations/a.json", transcript{Prompt: "p"}))
	assert.Contains(t, fake.objects, "crm-archive/prod/generations/a.json")

	var out transcript
	require.NoError(t, s.Load(ctx, "generations/a.json", &out))
	assert.Equal(t, "p", out.Prompt)
	assert.ErrorIs(t, s.Load(ctx, "generations/b.json", &out), ErrNotFound)
}
