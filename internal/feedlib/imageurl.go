package feedlib

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ImageProxyPath is the route prefix the image proxy serves rewritten
// image URLs under.
const ImageProxyPath = "/api/v1/image/"

type imageToken struct {
	URL     string `json:"url"`
	Referer string `json:"referer,omitempty"`
}

// EncodeImageURL packs (imageURL, referer) into a URL-safe token the image
// proxy can reverse. referer is the story URL the image was embedded in.
func EncodeImageURL(imageURL, referer string) string {
	data, _ := json.Marshal(imageToken{URL: imageURL, Referer: referer})
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeImageURL reverses EncodeImageURL.
func DecodeImageURL(token string) (imageURL, referer string, err error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", "", fmt.Errorf("DecodeImageURL: %w", err)
	}
	var t imageToken
	if err := json.Unmarshal(data, &t); err != nil {
		return "", "", fmt.Errorf("DecodeImageURL: %w", err)
	}
	return t.URL, t.Referer, nil
}

// ProxyImageURL returns the proxied form of an image URL, the value
// substituted into story HTML for referer-denied images.
func ProxyImageURL(imageURL, storyURL string) string {
	return ImageProxyPath + EncodeImageURL(imageURL, storyURL)
}
