package pdfdoc

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"

	"github.com/tsawler/lectern/source"
)

// passwordPad is the 32-byte padding string from the standard security
// handler. Passwords shorter than 32 bytes are filled from it.
var passwordPad = [32]byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

// cryptFilterMethod says how a class of data is encrypted.
type cryptFilterMethod int

const (
	cryptNone cryptFilterMethod = iota
	cryptRC4
	cryptAESV2 // AES-128-CBC with a leading IV
	cryptAESV3 // AES-256-CBC with a leading IV
)

// decryptor authenticates against the standard security handler and
// decrypts strings and stream payloads. Revisions up to 4 derive a
// per-object key from the file key; revision 5 and 6 use the file key
// directly.
type decryptor struct {
	key []byte
	rev int
	stm cryptFilterMethod
	str cryptFilterMethod
}

// newDecryptor validates the password against /Encrypt and returns a
// ready decryptor. An empty password that fails yields
// [source.ErrPasswordRequired]; a wrong non-empty password yields
// [source.ErrPasswordIncorrect].
func newDecryptor(enc Dict, docID []byte, password string) (*decryptor, error) {
	if filter, ok := enc.GetName("Filter"); !ok || filter != "Standard" {
		return nil, fmt.Errorf("security handler %v: %w", enc.Get("Filter"), source.ErrUnsupported)
	}

	v, _ := enc.GetInt("V")
	r, ok := enc.GetInt("R")
	if !ok {
		return nil, fmt.Errorf("encryption dictionary has no /R")
	}
	d := &decryptor{rev: int(r)}

	var err error
	d.stm, d.str, err = filterMethods(enc, int(v))
	if err != nil {
		return nil, err
	}

	switch {
	case v >= 1 && v <= 4 && r >= 2 && r <= 4:
		d.key, err = authenticateLegacy(enc, docID, []byte(password), int(r))
	case v == 5 && (r == 5 || r == 6):
		d.key, err = authenticateV5(enc, []byte(password), int(r))
	default:
		return nil, fmt.Errorf("encryption V %d R %d: %w", v, r, source.ErrUnsupported)
	}
	if err != nil {
		return nil, err
	}
	if d.key == nil {
		if password == "" {
			return nil, source.ErrPasswordRequired
		}
		return nil, source.ErrPasswordIncorrect
	}
	return d, nil
}

// filterMethods resolves the stream and string crypt methods. V4 and
// V5 name crypt filters in /CF; earlier versions are always RC4.
func filterMethods(enc Dict, v int) (stm, str cryptFilterMethod, err error) {
	if v < 4 {
		return cryptRC4, cryptRC4, nil
	}
	cf, _ := enc.GetDict("CF")
	lookup := func(key string) (cryptFilterMethod, error) {
		name, ok := enc.GetName(key)
		if !ok || name == "Identity" {
			return cryptNone, nil
		}
		f, ok := cf.GetDict(string(name))
		if !ok {
			return cryptNone, nil
		}
		cfm, _ := f.GetName("CFM")
		switch cfm {
		case "None":
			return cryptNone, nil
		case "V2":
			return cryptRC4, nil
		case "AESV2":
			return cryptAESV2, nil
		case "AESV3":
			return cryptAESV3, nil
		}
		return cryptNone, fmt.Errorf("crypt filter method /%s: %w", cfm, source.ErrUnsupported)
	}
	if stm, err = lookup("StmF"); err != nil {
		return
	}
	str, err = lookup("StrF")
	return
}

// decryptString decrypts a string object loaded from the file.
func (d *decryptor) decryptString(ref Ref, data []byte) ([]byte, error) {
	return d.apply(d.str, ref, data)
}

// decryptStream decrypts a stream payload loaded from the file.
func (d *decryptor) decryptStream(ref Ref, data []byte) ([]byte, error) {
	return d.apply(d.stm, ref, data)
}

func (d *decryptor) apply(m cryptFilterMethod, ref Ref, data []byte) ([]byte, error) {
	if len(data) == 0 || m == cryptNone {
		return data, nil
	}
	switch m {
	case cryptRC4:
		c, err := rc4.NewCipher(d.objectKey(ref, false))
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(data))
		c.XORKeyStream(out, data)
		return out, nil
	case cryptAESV2, cryptAESV3:
		return aesCBCDecrypt(d.objectKey(ref, true), data)
	}
	return nil, fmt.Errorf("crypt method %d: %w", m, source.ErrUnsupported)
}

// objectKey derives the key for one object. AES object keys mix in the
// sAlT constant per the standard handler.
func (d *decryptor) objectKey(ref Ref, aesAlg bool) []byte {
	if d.rev >= 5 {
		return d.key
	}
	h := md5.New()
	h.Write(d.key)
	h.Write([]byte{byte(ref.Num), byte(ref.Num >> 8), byte(ref.Num >> 16)})
	h.Write([]byte{byte(ref.Gen), byte(ref.Gen >> 8)})
	if aesAlg {
		h.Write([]byte{0x73, 0x41, 0x6C, 0x54})
	}
	key := h.Sum(nil)
	n := len(d.key) + 5
	if n > 16 {
		n = 16
	}
	return key[:n]
}

// ===== Revisions 2-4: RC4 and AES-128 =====

// authenticateLegacy tries the password as the user and then the owner
// password, returning the file key on success and nil when neither
// matches.
func authenticateLegacy(enc Dict, docID, password []byte, rev int) ([]byte, error) {
	o, _ := enc.GetString("O")
	u, _ := enc.GetString("U")
	if len(o) < 32 || len(u) < 32 {
		return nil, fmt.Errorf("encryption dictionary /O or /U is too short")
	}
	pInt, ok := enc.GetInt("P")
	if !ok {
		return nil, fmt.Errorf("encryption dictionary has no /P")
	}
	perms := int32(pInt)
	keyLen := 5
	if bits, ok := enc.GetInt("Length"); ok && bits >= 40 {
		keyLen = int(bits) / 8
	}
	if rev == 2 {
		keyLen = 5
	}
	encryptMeta := true
	if em, ok := enc.GetBool("EncryptMetadata"); ok {
		encryptMeta = bool(em)
	}

	if key := legacyUserKey(password, []byte(o), perms, docID, rev, keyLen, encryptMeta); key != nil {
		if legacyCheckUser(key, []byte(u), docID, rev) {
			return key, nil
		}
	}

	// As owner: recover the user password from /O, then rerun the
	// user check with it.
	ownerKey := legacyOwnerKey(password, rev, keyLen)
	userPwd := make([]byte, 32)
	copy(userPwd, o[:32])
	if rev == 2 {
		c, err := rc4.NewCipher(ownerKey)
		if err != nil {
			return nil, err
		}
		c.XORKeyStream(userPwd, userPwd)
	} else {
		for i := 19; i >= 0; i-- {
			c, err := rc4.NewCipher(xorKey(ownerKey, byte(i)))
			if err != nil {
				return nil, err
			}
			c.XORKeyStream(userPwd, userPwd)
		}
	}
	if key := legacyUserKey(userPwd, []byte(o), perms, docID, rev, keyLen, encryptMeta); key != nil {
		if legacyCheckUser(key, []byte(u), docID, rev) {
			return key, nil
		}
	}
	return nil, nil
}

// legacyUserKey runs algorithm 2: the file key from a user password.
func legacyUserKey(password, o []byte, perms int32, docID []byte, rev, keyLen int, encryptMeta bool) []byte {
	h := md5.New()
	h.Write(padPassword(password))
	h.Write(o[:32])
	h.Write([]byte{byte(perms), byte(perms >> 8), byte(perms >> 16), byte(perms >> 24)})
	h.Write(docID)
	if rev >= 4 && !encryptMeta {
		h.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})
	}
	key := h.Sum(nil)
	if rev >= 3 {
		for i := 0; i < 50; i++ {
			sum := md5.Sum(key[:keyLen])
			key = sum[:]
		}
	}
	return key[:keyLen]
}

// legacyOwnerKey runs algorithm 3 steps a-d: the RC4 key that
// enciphered the user password into /O.
func legacyOwnerKey(password []byte, rev, keyLen int) []byte {
	sum := md5.Sum(padPassword(password))
	key := sum[:]
	if rev >= 3 {
		for i := 0; i < 50; i++ {
			s := md5.Sum(key)
			key = s[:]
		}
		return key[:keyLen]
	}
	return key[:5]
}

// legacyCheckUser verifies a candidate file key against /U.
func legacyCheckUser(key, u, docID []byte, rev int) bool {
	if rev == 2 {
		c, err := rc4.NewCipher(key)
		if err != nil {
			return false
		}
		out := make([]byte, 32)
		c.XORKeyStream(out, passwordPad[:])
		return bytes.Equal(out, u[:32])
	}
	h := md5.New()
	h.Write(passwordPad[:])
	h.Write(docID)
	out := h.Sum(nil)
	for i := 0; i <= 19; i++ {
		c, err := rc4.NewCipher(xorKey(key, byte(i)))
		if err != nil {
			return false
		}
		c.XORKeyStream(out, out)
	}
	return bytes.Equal(out[:16], u[:16])
}

func padPassword(password []byte) []byte {
	out := make([]byte, 32)
	n := copy(out, password)
	copy(out[n:], passwordPad[:])
	return out
}

func xorKey(key []byte, x byte) []byte {
	out := make([]byte, len(key))
	for i, b := range key {
		out[i] = b ^ x
	}
	return out
}

// ===== Revisions 5-6: AES-256 =====

// authenticateV5 tries the password as the user and then the owner
// password for AES-256 encryption. /U and /O carry a 32-byte hash, an
// 8-byte validation salt and an 8-byte key salt; the file key is the
// AES-256 decryption of /UE or /OE.
func authenticateV5(enc Dict, password []byte, rev int) ([]byte, error) {
	u, _ := enc.GetString("U")
	o, _ := enc.GetString("O")
	ue, _ := enc.GetString("UE")
	oe, _ := enc.GetString("OE")
	if len(u) < 48 || len(o) < 48 || len(ue) < 32 || len(oe) < 32 {
		return nil, fmt.Errorf("AES-256 encryption dictionary is too short")
	}
	if len(password) > 127 {
		password = password[:127]
	}

	if hash := hash2B(rev, password, []byte(u[32:40]), nil); bytes.Equal(hash, []byte(u[:32])) {
		intermediate := hash2B(rev, password, []byte(u[40:48]), nil)
		return aesCBCNoPadDecrypt(intermediate, []byte(ue[:32]))
	}
	if hash := hash2B(rev, password, []byte(o[32:40]), []byte(u[:48])); bytes.Equal(hash, []byte(o[:32])) {
		intermediate := hash2B(rev, password, []byte(o[40:48]), []byte(u[:48]))
		return aesCBCNoPadDecrypt(intermediate, []byte(oe[:32]))
	}
	return nil, nil
}

// hash2B is the revision 6 hardened hash (algorithm 2.B). Revision 5
// stops after the initial SHA-256.
func hash2B(rev int, password, salt, udata []byte) []byte {
	h := sha256.New()
	h.Write(password)
	h.Write(salt)
	h.Write(udata)
	k := h.Sum(nil)
	if rev < 6 {
		return k
	}

	var e []byte
	for round := 1; ; round++ {
		step := make([]byte, 0, len(password)+len(k)+len(udata))
		step = append(step, password...)
		step = append(step, k...)
		step = append(step, udata...)
		k1 := bytes.Repeat(step, 64)

		block, err := aes.NewCipher(k[:16])
		if err != nil {
			return nil
		}
		e = make([]byte, len(k1))
		cipher.NewCBCEncrypter(block, k[16:32]).CryptBlocks(e, k1)

		var sum int
		for _, b := range e[:16] {
			sum += int(b)
		}
		switch sum % 3 {
		case 0:
			s := sha256.Sum256(e)
			k = s[:]
		case 1:
			s := sha512.Sum384(e)
			k = s[:]
		case 2:
			s := sha512.Sum512(e)
			k = s[:]
		}

		if round >= 64 && int(e[len(e)-1]) <= round-32 {
			break
		}
	}
	return k[:32]
}

// aesCBCDecrypt decrypts data whose first block is the IV and strips
// the PKCS#7 padding.
func aesCBCDecrypt(key, data []byte) ([]byte, error) {
	if len(data) < aes.BlockSize || len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("AES payload length %d is not block aligned", len(data))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	iv, ct := data[:aes.BlockSize], data[aes.BlockSize:]
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)
	if len(out) == 0 {
		return out, nil
	}
	pad := int(out[len(out)-1])
	if pad < 1 || pad > aes.BlockSize || pad > len(out) {
		return nil, fmt.Errorf("bad AES padding")
	}
	return out[:len(out)-pad], nil
}

// aesCBCNoPadDecrypt decrypts with a zero IV and no padding, as used
// for the /UE and /OE key wrap.
func aesCBCNoPadDecrypt(key, data []byte) ([]byte, error) {
	if len(data)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("AES payload length %d is not block aligned", len(data))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, aes.BlockSize)
	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}
