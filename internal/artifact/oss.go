package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"
	"github.com/aliyun/credentials-go/credentials"
)

// OSSStore keeps artifacts in an Alibaba Cloud OSS bucket under a prefix.
type OSSStore struct {
	bucket *oss.Bucket
	cred   credentials.Credential
	prefix string
}

// NewOSSFromEnv builds an OSSStore from OSS_BUCKET, OSS_REGION,
// OSS_ENDPOINT_INTERNAL/OSS_ENDPOINT_PUBLIC and OSS_PREFIX. The second result
// is false when OSS_BUCKET is unset, in which case the store is nil.
func NewOSSFromEnv() (*OSSStore, bool, error) {
	bucket := strings.TrimSpace(os.Getenv("OSS_BUCKET"))
	if bucket == "" {
		return nil, false, nil
	}
	region := strings.TrimSpace(os.Getenv("OSS_REGION"))

	endpoint := strings.TrimSpace(os.Getenv("OSS_ENDPOINT_INTERNAL"))
	if endpoint == "" {
		endpoint = strings.TrimSpace(os.Getenv("OSS_ENDPOINT_PUBLIC"))
	}
	if endpoint == "" {
		return nil, true, errors.New("OSS_BUCKET is set but OSS_ENDPOINT_INTERNAL/OSS_ENDPOINT_PUBLIC are not")
	}

	prefix := strings.Trim(strings.TrimSpace(os.Getenv("OSS_PREFIX")), "/")
	if prefix == "" {
		prefix = "drawdiff"
	}

	cred, err := newCredential(region)
	if err != nil {
		return nil, true, fmt.Errorf("failed to init alibaba credentials: %w", err)
	}
	if err := validateCredential(cred); err != nil {
		return nil, true, err
	}

	opts := []oss.ClientOption{
		oss.SetCredentialsProvider(&credentialsProvider{cred: cred}),
		oss.AuthVersion(oss.AuthV4),
	}
	if region != "" {
		opts = append(opts, oss.Region(region))
	}
	client, err := oss.New(endpoint, "", "", opts...)
	if err != nil {
		return nil, true, fmt.Errorf("failed to init oss client: %w", err)
	}
	b, err := client.Bucket(bucket)
	if err != nil {
		return nil, true, fmt.Errorf("failed to open oss bucket: %w", err)
	}
	return &OSSStore{bucket: b, cred: cred, prefix: prefix}, true, nil
}

func (s *OSSStore) objectKey(key string) string {
	return path.Join(s.prefix, cleanKey(key))
}

// Location returns the oss:// URL of key.
func (s *OSSStore) Location(key string) string {
	return "oss://" + s.bucket.BucketName + "/" + s.objectKey(key)
}

func (s *OSSStore) Put(ctx context.Context, key, contentType string, data []byte) error {
	if err := validateCredential(s.cred); err != nil {
		return err
	}
	opts := []oss.Option{oss.WithContext(ctx)}
	if contentType != "" {
		opts = append(opts, oss.ContentType(contentType))
	}
	if err := s.bucket.PutObject(s.objectKey(key), bytes.NewReader(data), opts...); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

func (s *OSSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateCredential(s.cred); err != nil {
		return nil, err
	}
	rc, err := s.bucket.GetObject(s.objectKey(key), oss.WithContext(ctx))
	if err != nil {
		var se oss.ServiceError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", key, err)
	}
	return data, nil
}

// newCredential prefers RRSA (OIDC role) when its variables are present and
// otherwise uses the default credential chain.
func newCredential(region string) (credentials.Credential, error) {
	roleArn := strings.TrimSpace(os.Getenv("ALIBABA_CLOUD_ROLE_ARN"))
	providerArn := strings.TrimSpace(os.Getenv("ALIBABA_CLOUD_OIDC_PROVIDER_ARN"))
	tokenFile := strings.TrimSpace(os.Getenv("ALIBABA_CLOUD_OIDC_TOKEN_FILE"))
	if roleArn != "" && providerArn != "" && tokenFile != "" {
		cfg := new(credentials.Config).
			SetType("oidc_role_arn").
			SetRoleArn(roleArn).
			SetOIDCProviderArn(providerArn).
			SetOIDCTokenFilePath(tokenFile)
		sts := strings.TrimSpace(os.Getenv("ALIBABA_CLOUD_STS_ENDPOINT"))
		if sts == "" {
			sts = "sts.aliyuncs.com"
			if region != "" {
				sts = "sts." + region + ".aliyuncs.com"
			}
		}
		cfg.SetSTSEndpoint(sts)
		return credentials.NewCredential(cfg)
	}
	return credentials.NewCredential(nil)
}

// validateCredential fails early so that requests are never sent
// anonymously with an empty key pair.
func validateCredential(cred credentials.Credential) error {
	if cred == nil {
		return errors.New("alibaba cloud credentials are not initialised")
	}
	c, err := cred.GetCredential()
	if err != nil {
		return fmt.Errorf("failed to get alibaba cloud credentials: %w", err)
	}
	if c == nil || strings.TrimSpace(deref(c.AccessKeyId)) == "" || strings.TrimSpace(deref(c.AccessKeySecret)) == "" {
		return errors.New("alibaba cloud credentials are empty")
	}
	return nil
}

// credentialsProvider bridges credentials-go to the OSS SDK.
type credentialsProvider struct {
	cred credentials.Credential
}

type ossCred struct {
	id, secret, token string
}

func (c *ossCred) GetAccessKeyID() string     { return c.id }
func (c *ossCred) GetAccessKeySecret() string { return c.secret }
func (c *ossCred) GetSecurityToken() string   { return c.token }

func (p *credentialsProvider) GetCredentials() oss.Credentials {
	out, err := p.cred.GetCredential()
	if err != nil || out == nil {
		// The SDK interface has no error return; the request fails instead.
		return &ossCred{}
	}
	return &ossCred{
		id:     deref(out.AccessKeyId),
		secret: deref(out.AccessKeySecret),
		token:  deref(out.SecurityToken),
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
