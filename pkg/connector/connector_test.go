package connector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/David-Botos/ipeds-ingress/pkg/config"
	"github.com/David-Botos/ipeds-ingress/pkg/model"
)

func TestParseTableRef(t *testing.T) {
	ref, err := ParseTableRef("IPEDS.HD2022", "PUBLIC")
	require.NoError(t, err)
	assert.Equal(t, TableRef{Schema: "IPEDS", Table: "HD2022"}, ref)
	assert.Equal(t, "IPEDS.HD2022", ref.String())

	ref, err = ParseTableRef("ADM2022_RV", "PUBLIC")
	require.NoError(t, err)
	assert.Equal(t, "PUBLIC.ADM2022_RV", ref.String())

	ref, err = ParseTableRef("EF2022A", "")
	require.NoError(t, err)
	assert.Equal(t, "EF2022A", ref.String())

	for _, bad := range []string{"", "a.b.c", "HD; DROP TABLE x", "IPEDS.\"HD\"", "1HD"} {
		_, err := ParseTableRef(bad, "PUBLIC")
		assert.Error(t, err, bad)
	}
}

func TestBuildInsert(t *testing.T) {
	got := BuildInsert("public.colleges", []string{"id", "ipeds_id", "document"}, 2)
	assert.Equal(t,
		`INSERT INTO "public"."colleges" ("id", "ipeds_id", "document") VALUES ($1, $2, $3), ($4, $5, $6)`,
		got)
}

func TestQuoteTable(t *testing.T) {
	assert.Equal(t, `"ipeds_sync"`, QuoteTable("ipeds_sync"))
	assert.Equal(t, `"odd""name"`, QuoteTable(`odd"name`))
}

func TestRowFromValues(t *testing.T) {
	row := rowFromValues([]string{"UNITID", "INSTNM", "ADMSSN"}, []interface{}{int64(100654), []byte("Alabama A & M University"), nil})
	assert.Equal(t, model.Row{"UNITID": "100654", "INSTNM": "Alabama A & M University"}, row)
}

func TestFactoryRequiresConfiguration(t *testing.T) {
	f := NewConnectorFactory(&config.Config{}, nil)
	assert.False(t, f.HasSnowflake())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := f.CreateSnowflakeConnector(ctx)
	assert.Error(t, err)
	_, err = f.CreatePostgresConnector(ctx)
	assert.Error(t, err)
}
