// Package auth provides request adapters and retriers that authenticate
// ws calls: AWS Signature Version 4 and HTTP Digest.
//
// OAuth2 support lives in the oauth2 subpackage.
package auth
