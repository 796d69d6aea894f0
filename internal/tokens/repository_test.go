package tokens

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/gu-corp/nft-cart-backend/pkg/enums"
)

const (
	testContract = "0x4444444444444444444444444444444444444444"
	testOwner    = "0x2222222222222222222222222222222222222222"
	testCurrency = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
)

func setupTokensTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	tokens := `
CREATE TABLE IF NOT EXISTS tokens (
  contract TEXT NOT NULL,
  token_id TEXT NOT NULL,
  chain_id INTEGER NOT NULL DEFAULT 1,
  name TEXT,
  image_url TEXT,
  owner TEXT NOT NULL,
  created_at DATETIME,
  updated_at DATETIME,
  PRIMARY KEY (contract, token_id)
);`
	asks := `
CREATE TABLE IF NOT EXISTS asks (
  id TEXT PRIMARY KEY,
  contract TEXT NOT NULL,
  token_id TEXT NOT NULL,
  signer TEXT NOT NULL,
  price TEXT NOT NULL,
  currency TEXT NOT NULL,
  nonce INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL DEFAULT 'active',
  expires_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(tokens).Error)
	require.NoError(t, db.Exec(asks).Error)
	return db
}

func seedToken(t *testing.T, db *gorm.DB, tokenID string) {
	t.Helper()
	require.NoError(t, db.Exec(
		`INSERT INTO tokens (contract, token_id, chain_id, name, owner) VALUES (?, ?, 1, ?, ?)`,
		testContract, tokenID, "token "+tokenID, testOwner,
	).Error)
}

func seedAsk(t *testing.T, db *gorm.DB, tokenID, price string, status enums.AskStatus, expiresAt *time.Time) {
	t.Helper()
	require.NoError(t, db.Exec(
		`INSERT INTO asks (id, contract, token_id, signer, price, currency, status, expires_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), testContract, tokenID, testOwner, price, testCurrency, string(status), expiresAt,
	).Error)
}

func TestFindTokenReturnsNilWhenMissing(t *testing.T) {
	repo := NewRepository(setupTokensTestDB(t))

	token, err := repo.FindToken(context.Background(), testContract, "404")
	require.NoError(t, err)
	assert.Nil(t, token)
}

func TestFindTokenNormalizesContractCase(t *testing.T) {
	db := setupTokensTestDB(t)
	seedToken(t, db, "7")
	repo := NewRepository(db)

	token, err := repo.FindToken(context.Background(), "0x4444444444444444444444444444444444444444", "7")
	require.NoError(t, err)
	require.NotNil(t, token)
	assert.Equal(t, "token 7", token.Name)

	upper, err := repo.FindToken(context.Background(), "0x4444444444444444444444444444444444444444", "7")
	require.NoError(t, err)
	require.NotNil(t, upper)
}

func TestActiveAsksOrdersCheapestFirstAndFiltersDead(t *testing.T) {
	db := setupTokensTestDB(t)
	seedToken(t, db, "7")

	expired := time.Now().Add(-time.Hour).UTC()
	future := time.Now().Add(time.Hour).UTC()
	seedAsk(t, db, "7", "900", enums.AskStatusActive, nil)
	seedAsk(t, db, "7", "120", enums.AskStatusActive, &future)
	seedAsk(t, db, "7", "100", enums.AskStatusFilled, nil)
	seedAsk(t, db, "7", "50", enums.AskStatusActive, &expired)
	// longer decimal string sorts after despite lexicographic order
	seedAsk(t, db, "7", "1000", enums.AskStatusActive, nil)

	repo := NewRepository(db)
	asks, err := repo.ActiveAsks(context.Background(), testContract, "7")
	require.NoError(t, err)
	require.Len(t, asks, 3)
	assert.Equal(t, "120", asks[0].Price)
	assert.Equal(t, "900", asks[1].Price)
	assert.Equal(t, "1000", asks[2].Price)
}

func TestServiceLookupShapesDetail(t *testing.T) {
	db := setupTokensTestDB(t)
	seedToken(t, db, "7")
	seedAsk(t, db, "7", "250", enums.AskStatusActive, nil)

	svc, err := NewService(NewRepository(db), nil)
	require.NoError(t, err)

	detail, err := svc.Lookup(context.Background(), testContract+"-7")
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, testOwner, detail.Owner)
	require.Len(t, detail.Asks, 1)
	assert.Equal(t, "250", detail.Asks[0].Price)
	assert.Equal(t, testCurrency, detail.Asks[0].Currency)

	missing, err := svc.Lookup(context.Background(), testContract+"-404")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestSplitKeyRejectsMalformedKeys(t *testing.T) {
	for _, key := range []string{"", "nodash", "-7", testContract + "-"} {
		_, _, err := SplitKey(key)
		assert.Error(t, err, key)
	}

	contract, tokenID, err := SplitKey(testContract + "-12-34")
	require.NoError(t, err)
	assert.Equal(t, testContract, contract)
	assert.Equal(t, "12-34", tokenID)
}
