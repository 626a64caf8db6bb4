package vault

// Secret holds one encrypted credential slot on an entity. The ciphertext is
// unexported so the zero value means "absent" and accidental JSON
// serialization yields an empty object; safe views expose only Present().
type Secret struct {
	ciphertext string
}

// NewSecret wraps stored ciphertext. An empty ciphertext is the absent secret.
func NewSecret(ciphertext string) Secret {
	return Secret{ciphertext: ciphertext}
}

// Present reports whether a value is stored.
func (s Secret) Present() bool { return s.ciphertext != "" }

// Ciphertext returns the stored ciphertext for persistence or decryption.
func (s Secret) Ciphertext() string { return s.ciphertext }

// Clear returns the absent secret.
func Clear() Secret { return Secret{} }
