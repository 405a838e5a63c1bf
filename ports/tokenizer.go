package ports

import "github.com/layer-3/anchor/core"

// Tokenizer converts between redeemed challenges and session tokens
type Tokenizer interface {
	Issue(challenge *core.Challenge) (string, error)
	Validate(token string) (*core.SessionCredential, error)
}
