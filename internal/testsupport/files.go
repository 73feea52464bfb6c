package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// AccessKey builds a well-formed 44-character access key for the given
// 14-digit entity identifier and document number.
func AccessKey(cnpj string, number int) string {
	return "35" + "2401" + cnpj + "55" + "001" + fmt.Sprintf("%09d", number) + "1" + "12345678" + "9"
}

// AuthorizedXML returns a processed artifact carrying the authorization status.
func AuthorizedXML(key string) string {
	return `<?xml version="1.0"?><nfeProc><protNFe><infProt><chNFe>` + key +
		`</chNFe><cStat>100</cStat><xMotivo>Autorizado o uso da NF-e</xMotivo></infProt></protNFe></nfeProc>`
}

// RejectedXML returns a processed artifact without an authorization marker.
func RejectedXML(key string) string {
	return `<?xml version="1.0"?><nfeProc><protNFe><infProt><chNFe>` + key +
		`</chNFe><cStat>539</cStat><xMotivo>Rejeicao: duplicidade</xMotivo></infProt></protNFe></nfeProc>`
}

// WriteArtifact writes <dir>/<key>.xml and returns its path.
func WriteArtifact(t testing.TB, dir, key, content string) string {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
	path := filepath.Join(dir, key+".xml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
