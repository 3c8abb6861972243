package acquire

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/blake2b"
)

// ContentKey content-addresses an interpreter build by version+arch (spec
// section 4.1's "Caching policy"). blake2b gives a short, collision-safe
// digest usable as both a filesystem glob key and a cache table's primary key.
func ContentKey(version string, arch Arch) string {
	sum := blake2b.Sum256([]byte(string(arch) + "/" + version))
	return hex.EncodeToString(sum[:])[:32]
}

// LocalCache is the on-disk, per-build-machine cache section 4.1 describes:
// the extracted binary is reused on rebuilds via a content-addressed glob
// under cacheRoot, instead of re-downloading and re-extracting every time.
type LocalCache struct {
	root string
}

// NewLocalCache roots the cache at the given directory, creating it if absent.
func NewLocalCache(root string) (*LocalCache, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "acquire: failed to create local cache directory")
	}
	return &LocalCache{root: root}, nil
}

func (c *LocalCache) path(key string) string {
	return filepath.Join(c.root, key, interpreterName)
}

// Lookup returns the cached binary's path if present, or "" if it is a miss.
func (c *LocalCache) Lookup(key string) (string, bool) {
	p := c.path(key)
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

// Store copies an already-extracted binary into the cache under key.
func (c *LocalCache) Store(key, extractedPath string) (string, error) {
	dest := c.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", errors.Wrap(err, "acquire: failed to create cache entry directory")
	}
	src, err := os.Open(extractedPath)
	if err != nil {
		return "", errors.Wrap(err, "acquire: failed to open extracted binary for caching")
	}
	defer src.Close()
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o755)
	if err != nil {
		return "", errors.Wrap(err, "acquire: failed to create local cache file")
	}
	defer out.Close()
	if _, err := io.Copy(out, src); err != nil {
		return "", errors.Wrap(err, "acquire: failed to populate local cache file")
	}
	return dest, nil
}

// RemoteCache is the distributed tier SPEC_FULL.md section 3 adds on top of
// the local glob cache: the extracted binary blob lives in S3 and a metadata
// row (hash, version, arch, object key, timestamp) lives in DynamoDB, so a
// fleet of ephemeral build machines shares one download instead of each
// paying for it independently. This is additive — callers still populate
// LocalCache from whatever RemoteCache returns, so the local glob remains the
// fast path for a warm build machine.
type RemoteCache struct {
	s3     *s3.Client
	ddb    *dynamodb.Client
	bucket string
	table  string
}

// NewRemoteCache wires existing AWS SDK clients to specific bucket/table names.
func NewRemoteCache(s3Client *s3.Client, ddbClient *dynamodb.Client, bucket, table string) *RemoteCache {
	return &RemoteCache{s3: s3Client, ddb: ddbClient, bucket: bucket, table: table}
}

type cacheRecord struct {
	Key       string `dynamodbav:"key"`
	Version   string `dynamodbav:"version"`
	Arch      string `dynamodbav:"arch"`
	ObjectKey string `dynamodbav:"object_key"`
	StoredAt  int64  `dynamodbav:"stored_at"`
}

// Lookup checks DynamoDB for a metadata row, then downloads the blob from S3
// if one exists. A miss in either store is reported as ok=false, never an error.
func (c *RemoteCache) Lookup(ctx context.Context, key string) (data []byte, ok bool, err error) {
	out, err := c.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.table),
		Key: map[string]types.AttributeValue{
			"key": &types.AttributeValueMemberS{Value: key},
		},
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "acquire: remote cache metadata lookup failed")
	}
	if out.Item == nil {
		return nil, false, nil
	}
	var rec cacheRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, false, errors.Wrap(err, "acquire: remote cache metadata decode failed")
	}

	obj, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(rec.ObjectKey),
	})
	if err != nil {
		return nil, false, errors.Wrap(err, "acquire: remote cache blob fetch failed")
	}
	defer obj.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, obj.Body); err != nil {
		return nil, false, errors.Wrap(err, "acquire: remote cache blob read failed")
	}
	return buf.Bytes(), true, nil
}

// Store uploads the extracted binary blob and records its metadata row.
func (c *RemoteCache) Store(ctx context.Context, key, version string, arch Arch, data []byte, now time.Time) error {
	objectKey := fmt.Sprintf("interpreters/%s/%s", key, interpreterName)

	if _, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(objectKey),
		Body:   bytes.NewReader(data),
	}); err != nil {
		return errors.Wrap(err, "acquire: remote cache blob upload failed")
	}

	item, err := attributevalue.MarshalMap(cacheRecord{
		Key:       key,
		Version:   version,
		Arch:      string(arch),
		ObjectKey: objectKey,
		StoredAt:  now.Unix(),
	})
	if err != nil {
		return errors.Wrap(err, "acquire: remote cache metadata encode failed")
	}
	if _, err := c.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(c.table),
		Item:      item,
	}); err != nil {
		return errors.Wrap(err, "acquire: remote cache metadata write failed")
	}
	return nil
}
