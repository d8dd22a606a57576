package epubdoc

import (
	"archive/zip"
	"encoding/xml"
	"io"
	"path"
	"strings"
)

// encryptionManifest mirrors META-INF/encryption.xml.
type encryptionManifest struct {
	XMLName xml.Name `xml:"encryption"`
	Entries []struct {
		Method struct {
			Algorithm string `xml:"Algorithm,attr"`
		} `xml:"EncryptionMethod"`
		Cipher struct {
			Reference struct {
				URI string `xml:"URI,attr"`
			} `xml:"CipherReference"`
		} `xml:"CipherData"`
	} `xml:"EncryptedData"`
}

// checkDRM rejects protected books. rights.xml marks Adobe ADEPT and is
// always fatal. encryption.xml needs parsing: font obfuscation is legal
// and common, but an encrypted content document means real DRM.
func checkDRM(zr *zip.Reader) error {
	for _, f := range zr.File {
		switch f.Name {
		case "META-INF/rights.xml":
			return ErrDRMProtected
		case "META-INF/encryption.xml":
			enc, err := readEncryption(f)
			if err != nil {
				// Unparseable encryption manifest: assume the worst.
				return ErrDRMProtected
			}
			for _, e := range enc.Entries {
				if fontObfuscation(e.Method.Algorithm) {
					continue
				}
				if encryptedContent(e.Cipher.Reference.URI) {
					return ErrDRMProtected
				}
			}
		}
	}
	return nil
}

func readEncryption(f *zip.File) (*encryptionManifest, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	var enc encryptionManifest
	if err := xml.Unmarshal(data, &enc); err != nil {
		return nil, err
	}
	return &enc, nil
}

// fontObfuscation reports whether the algorithm is one of the standard
// font mangling schemes, which are not DRM.
func fontObfuscation(algorithm string) bool {
	if !strings.Contains(algorithm, "obfuscation") {
		return false
	}
	return strings.Contains(algorithm, "adobe.com") || strings.Contains(algorithm, "idpf.org")
}

// encryptedContent reports whether an encrypted URI is a reading-order
// document rather than an embedded asset.
func encryptedContent(uri string) bool {
	switch strings.ToLower(path.Ext(uri)) {
	case ".xhtml", ".html", ".htm", ".xml", ".css":
		return true
	}
	return false
}
