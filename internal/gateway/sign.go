package gateway

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/imroc/req/v3"
)

// sha256 of the empty string, used for bodyless requests.
const emptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// sigV4Wrapper signs every outgoing request with AWS Signature v4. The
// gateway admin API authenticates the same way its S3 frontend does.
func sigV4Wrapper(accessKey, secretKey, region string) (req.HttpRoundTripWrapperFunc, error) {
	provider := credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")
	signer := v4.NewSigner()

	return func(rt http.RoundTripper) req.HttpRoundTripFunc {
		return func(r *http.Request) (*http.Response, error) {
			creds, err := provider.Retrieve(r.Context())
			if err != nil {
				return nil, fmt.Errorf("gateway: resolve credentials: %w", err)
			}
			hash, err := payloadHash(r)
			if err != nil {
				return nil, fmt.Errorf("gateway: hash payload: %w", err)
			}
			if err := signer.SignHTTP(r.Context(), creds, r, hash, "s3", region, time.Now().UTC()); err != nil {
				return nil, fmt.Errorf("gateway: sign request: %w", err)
			}
			return rt.RoundTrip(r)
		}
	}, nil
}

// payloadHash buffers the request body, returns its hex sha256 and restores
// the body for the transport.
func payloadHash(r *http.Request) (string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return emptyPayloadHash, nil
	}

	data, err := io.ReadAll(r.Body)
	r.Body.Close()
	if err != nil {
		return "", err
	}

	r.Body = io.NopCloser(bytes.NewReader(data))
	r.ContentLength = int64(len(data))
	r.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
