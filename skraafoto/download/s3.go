package download

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	defaultS3Region  = "eu-west-1"
	expirationLayout = "2006-01-02 15:04:05-07:00"
	// expirySlack renews credentials slightly before the service deadline.
	expirySlack = time.Minute
)

// s3Downloader is the part of the s3 transfer manager the fetcher needs.
// Tests substitute it.
type s3Downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, opts ...func(*manager.Downloader)) (int64, error)
}

// temporaryCredentials is the JSON document served by the credentials URL.
type temporaryCredentials struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	SessionToken    string `json:"sessionToken"`
	Expiration      string `json:"expiration"`
}

// s3Fetcher downloads s3:// asset hrefs with short-lived credentials
// obtained from a credentials endpoint. Credentials and per-region
// downloaders are cached until the credentials expire.
type s3Fetcher struct {
	credentialsURL string
	token          string

	mu            sync.Mutex
	creds         aws.Credentials
	downloaders   map[string]s3Downloader
	newDownloader func(cfg aws.Config) s3Downloader
}

func newS3Fetcher(credentialsURL, token string) *s3Fetcher {
	return &s3Fetcher{
		credentialsURL: credentialsURL,
		token:          token,
		downloaders:    make(map[string]s3Downloader),
		newDownloader: func(cfg aws.Config) s3Downloader {
			return manager.NewDownloader(s3.NewFromConfig(cfg))
		},
	}
}

func (f *s3Fetcher) download(ctx context.Context, client *http.Client, rawURL, destPath string) (err error) {
	bucket, key, err := splitS3URL(rawURL)
	if err != nil {
		return err
	}
	dl, err := f.downloader(ctx, client, defaultS3Region)
	if err != nil {
		return err
	}

	out, err := os.Create(destPath + ".part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		out.Close()
		if err != nil {
			os.Remove(destPath + ".part")
		}
	}()

	input := &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)}
	if _, err = dl.Download(ctx, out, input); err != nil {
		return fmt.Errorf("s3 download: %w", err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(destPath+".part", destPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func (f *s3Fetcher) downloader(ctx context.Context, client *http.Client, region string) (s3Downloader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.creds.Expired() && f.creds.AccessKeyID != "" {
		if dl, ok := f.downloaders[region]; ok {
			return dl, nil
		}
	}

	creds, err := f.fetchCredentials(ctx, client)
	if err != nil {
		return nil, err
	}
	f.creds = creds
	f.downloaders = make(map[string]s3Downloader)

	cfg := aws.Config{
		Region: region,
		Credentials: credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
	}
	dl := f.newDownloader(cfg)
	f.downloaders[region] = dl
	return dl, nil
}

func (f *s3Fetcher) fetchCredentials(ctx context.Context, client *http.Client) (aws.Credentials, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.credentialsURL, nil)
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("create credentials request: %w", err)
	}
	if f.token != "" {
		req.Header.Set("token", f.token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return aws.Credentials{}, fmt.Errorf("fetch s3 credentials: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return aws.Credentials{}, fmt.Errorf("fetch s3 credentials: status %d: %s", resp.StatusCode, string(body))
	}

	var payload temporaryCredentials
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return aws.Credentials{}, fmt.Errorf("decode s3 credentials: %w", err)
	}
	if payload.AccessKeyID == "" || payload.SecretAccessKey == "" {
		return aws.Credentials{}, fmt.Errorf("s3 credentials response missing keys")
	}

	creds := aws.Credentials{
		AccessKeyID:     payload.AccessKeyID,
		SecretAccessKey: payload.SecretAccessKey,
		SessionToken:    payload.SessionToken,
	}
	if payload.Expiration != "" {
		expires, err := time.Parse(expirationLayout, payload.Expiration)
		if err != nil {
			return aws.Credentials{}, fmt.Errorf("parse s3 credentials expiration: %w", err)
		}
		creds.CanExpire = true
		creds.Expires = expires.Add(-expirySlack)
	}
	return creds, nil
}

func splitS3URL(rawURL string) (bucket, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("parse s3 url: %w", err)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("s3 url %q missing bucket or key", rawURL)
	}
	return bucket, key, nil
}
