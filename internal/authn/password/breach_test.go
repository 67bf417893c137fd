package password

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjects struct {
	objects map[string]string
	err     error
	keys    []string
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.keys = append(f.keys, *in.Key)
	if f.err != nil {
		return nil, f.err
	}
	body, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func TestS3BreachCorpus_Breached(t *testing.T) {
	h := sha1Hex("password1")
	objects := &fakeObjects{objects: map[string]string{
		"range/" + h[:5]: "0000000000000000000000000000000000A:3\r\n" + strings.ToLower(h[5:]) + ":42\r\n",
	}}
	c := &S3BreachCorpus{client: objects, bucket: "corpus", prefix: "range/"}

	got, err := c.Breached(context.Background(), "password1")
	require.NoError(t, err)
	assert.True(t, got)
	assert.Equal(t, []string{"range/" + h[:5]}, objects.keys)

	got, err = c.Breached(context.Background(), "Correct-Horse9!")
	require.NoError(t, err)
	assert.False(t, got)
}

func TestS3BreachCorpus_ZeroCountIsClean(t *testing.T) {
	h := sha1Hex("padding")
	c := &S3BreachCorpus{client: &fakeObjects{objects: map[string]string{h[:5]: h[5:] + ":0\n"}}}
	got, err := c.Breached(context.Background(), "padding")
	require.NoError(t, err)
	assert.False(t, got)
}

func TestS3BreachCorpus_Error(t *testing.T) {
	boom := errors.New("network")
	c := &S3BreachCorpus{client: &fakeObjects{err: boom}}
	_, err := c.Breached(context.Background(), "x")
	require.ErrorIs(t, err, boom)
}

func TestNewS3BreachCorpus_Wiring(t *testing.T) {
	origLoad, origNew := loadDefaultAWSConfig, newS3ClientFromConfig
	t.Cleanup(func() {
		loadDefaultAWSConfig = origLoad
		newS3ClientFromConfig = origNew
	})

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			require.NoError(t, fn(&lo))
		}
		assert.Equal(t, "eu-west-1", lo.Region)
		assert.NotNil(t, lo.Credentials)
		return aws.Config{}, nil
	}
	var endpoint string
	var pathStyle bool
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		var o s3.Options
		for _, fn := range optFns {
			fn(&o)
		}
		endpoint = aws.ToString(o.BaseEndpoint)
		pathStyle = o.UsePathStyle
		return &s3.Client{}
	}

	c, err := NewS3BreachCorpus(context.Background(), S3Options{
		Bucket: "corpus", Region: "eu-west-1", Endpoint: "http://127.0.0.1:9000", User: "u", Password: "p",
	})
	require.NoError(t, err)
	assert.Equal(t, "corpus", c.bucket)
	assert.Equal(t, "http://127.0.0.1:9000", endpoint)
	assert.True(t, pathStyle)

	loadDefaultAWSConfig = func(context.Context, ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("no creds")
	}
	_, err = NewS3BreachCorpus(context.Background(), S3Options{})
	require.Error(t, err)
}
