package harbor

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"fmt"
	"math/big"
	"net"
	"sync"

	"golang.org/x/crypto/acme/autocert"
)

// tlsConfigType is the type Serve threads through buildTLSConfig; named so
// the call site doesn't repeat the crypto/tls import.
type tlsConfigType = tls.Config

// tlsListener wraps l so every accepted connection performs a TLS
// handshake using cfg.
func tlsListener(l net.Listener, cfg *tls.Config) net.Listener {
	return tls.NewListener(l, cfg)
}

// autocertTLSConfig builds a tls.Config backed by
// golang.org/x/crypto/acme/autocert, issuing certificates on demand for
// any of hosts and caching them under cacheDir. See spec §6's TLS
// bootstrap notes.
func autocertTLSConfig(hosts []string, cacheDir string) *tls.Config {
	m := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(hosts...),
		Cache:      autocert.DirCache(cacheDir),
	}

	return m.TLSConfig()
}

// GeneratePassphrase returns a random string of length in [minLen, maxLen]
// drawn from charset, used to seed the in-memory private-key keystore. See
// spec §6.
func GeneratePassphrase(charset string, minLen, maxLen int) (string, error) {
	if charset == "" {
		return "", fmt.Errorf("harbor: empty passphrase charset")
	}

	length := minLen
	if maxLen > minLen {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(maxLen-minLen+1)))
		if err != nil {
			return "", fmt.Errorf("harbor: failed to size passphrase: %w", err)
		}
		length = minLen + int(n.Int64())
	}

	runes := []rune(charset)
	out := make([]rune, length)

	for i := range out {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(runes))))
		if err != nil {
			return "", fmt.Errorf("harbor: failed to generate passphrase: %w", err)
		}
		out[i] = runes[n.Int64()]
	}

	return string(out), nil
}

// Keystore holds a TLS private key encrypted at rest in memory under a
// freshly generated passphrase, decrypting it only for the duration of a
// handshake. This guards the key material against being readable in a heap
// dump or accidental log of process memory, per spec §6.
type Keystore struct {
	mu         sync.Mutex
	passphrase string
	ciphertext []byte
	nonce      []byte
	cert       tls.Certificate
	plaintext  bool
}

// NewKeystore encrypts keyPEM under a freshly generated passphrase drawn
// from charset and pairs it with certPEM for later certificate
// reconstruction.
func NewKeystore(certPEM, keyPEM []byte, charset string) (*Keystore, error) {
	passphrase, err := GeneratePassphrase(charset, 12, 16)
	if err != nil {
		return nil, err
	}

	block, err := newPassphraseCipher(passphrase)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, block.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("harbor: failed to generate keystore nonce: %w", err)
	}

	ciphertext := block.Seal(nil, nonce, keyPEM, nil)

	ks := &Keystore{
		passphrase: passphrase,
		ciphertext: ciphertext,
		nonce:      nonce,
	}

	cert, err := ks.certificate(certPEM)
	if err != nil {
		return nil, err
	}
	ks.cert = cert

	return ks, nil
}

func newPassphraseCipher(passphrase string) (cipher.AEAD, error) {
	sum := sha256.Sum256([]byte(passphrase))

	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, fmt.Errorf("harbor: failed to build keystore cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("harbor: failed to build keystore AEAD: %w", err)
	}

	return gcm, nil
}

func (k *Keystore) decryptKey() ([]byte, error) {
	gcm, err := newPassphraseCipher(k.passphrase)
	if err != nil {
		return nil, err
	}

	return gcm.Open(nil, k.nonce, k.ciphertext, nil)
}

func (k *Keystore) certificate(certPEM []byte) (tls.Certificate, error) {
	keyPEM, err := k.decryptKey()
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("harbor: failed to decrypt keystore: %w", err)
	}

	return tls.X509KeyPair(certPEM, keyPEM)
}

// GetCertificate implements the signature expected by tls.Config, returning
// the decrypted certificate for every handshake.
func (k *Keystore) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	return &k.cert, nil
}

// NewTLSConfig builds a tls.Config backed by a Keystore loaded from the
// given PEM certificate chain and PKCS#8 private key files, enforcing
// TLS 1.2 as the floor per spec §6. It returns the Keystore alongside the
// config so the caller can hold onto it (e.g. for later rotation).
func NewTLSConfig(certPEM, keyPEM []byte, passphraseCharset string) (*tls.Config, *Keystore, error) {
	ks, err := NewKeystore(certPEM, keyPEM, passphraseCharset)
	if err != nil {
		return nil, nil, err
	}

	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: ks.GetCertificate,
	}, ks, nil
}
