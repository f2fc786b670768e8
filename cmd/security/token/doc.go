// Package token loads and generates the symmetric secrets used to sign access tokens.
package token
