package accountsjson

import "fmt"

const currentSchemaVersion = 1

// fileSchema is the on-disk account document. Token material never appears
// here in the clear: Credentials holds the base64 blob produced by the
// crypter, while identity fields stay readable for manual inspection.
type fileSchema struct {
	Version       int             `json:"version"`
	ActiveAccount string          `json:"activeAccount,omitempty"`
	Accounts      []accountSchema `json:"accounts"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported accounts schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type accountSchema struct {
	PlayerID    string `json:"playerId"`
	Name        string `json:"name"`
	Provenance  string `json:"provenance,omitempty"`
	AddedAt     string `json:"addedAt,omitempty"`
	RefreshedAt string `json:"refreshedAt,omitempty"`
	Credentials string `json:"credentials"`
}

// credentialsPayload is what gets encrypted into accountSchema.Credentials.
type credentialsPayload struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType,omitempty"`
	ExpiresAt    string `json:"expiresAt,omitempty"`
}
