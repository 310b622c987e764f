package sources_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openbridge/objectsync/internal/httpclient"
	"github.com/openbridge/objectsync/internal/model"
	"github.com/openbridge/objectsync/internal/sources"
)

func TestXMLSourceFetchAll(t *testing.T) {
	t.Parallel()

	const document = `<?xml version="1.0"?>
<catalog>
  <store code="s1">
    <name>Store One</name>
    <city>Utrecht</city>
  </store>
  <store code="s2">
    <name>Store Two</name>
    <city>Leiden</city>
  </store>
</catalog>`

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(document))
	}))
	defer server.Close()

	handler := sources.NewXMLSourceHandler(httpclient.NewDefaultClient(0))
	sync := &model.Synchronization{
		ID:         "xml-sync",
		SourceType: model.SourceTypeXML,
		SourceConfig: map[string]any{
			"endpoint":        server.URL,
			"resultsPosition": "catalog.store",
			"usesPagination":  false,
		},
	}

	records, err := handler.FetchAll(context.Background(), sync, false)
	require.NoError(t, err)
	require.Len(t, records, 2)

	first, ok := records[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "s1", first["@code"])
	assert.Equal(t, "Store One", first["name"])
	assert.Equal(t, "Utrecht", first["city"])
}

func TestXMLSourceSingleElementBecomesOneRecord(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<catalog><store><name>Only</name></store></catalog>`))
	}))
	defer server.Close()

	handler := sources.NewXMLSourceHandler(httpclient.NewDefaultClient(0))
	sync := &model.Synchronization{
		ID:         "xml-sync",
		SourceType: model.SourceTypeXML,
		SourceConfig: map[string]any{
			"endpoint":        server.URL,
			"resultsPosition": "catalog.store",
			"usesPagination":  false,
		},
	}

	records, err := handler.FetchAll(context.Background(), sync, false)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Only", records[0].(map[string]any)["name"])
}

func TestSOAPSourceUnwrapsEnvelope(t *testing.T) {
	t.Parallel()

	const document = `<?xml version="1.0"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/">
  <soap:Body>
    <GetStoresResponse>
      <store><name>One</name></store>
      <store><name>Two</name></store>
    </GetStoresResponse>
  </soap:Body>
</soap:Envelope>`

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(document))
	}))
	defer server.Close()

	handler := sources.NewSOAPSourceHandler(httpclient.NewDefaultClient(0))
	sync := &model.Synchronization{
		ID:         "soap-sync",
		SourceType: model.SourceTypeSOAP,
		SourceConfig: map[string]any{
			"endpoint":        server.URL,
			"resultsPosition": "GetStoresResponse.store",
			"usesPagination":  false,
		},
	}

	records, err := handler.FetchAll(context.Background(), sync, false)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Two", records[1].(map[string]any)["name"])
}

func TestSOAPSourceMissingEnvelope(t *testing.T) {
	t.Parallel()

	server := newTestServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<NotAnEnvelope/>`))
	}))
	defer server.Close()

	handler := sources.NewSOAPSourceHandler(httpclient.NewDefaultClient(0))
	sync := &model.Synchronization{
		ID:         "soap-sync",
		SourceType: model.SourceTypeSOAP,
		SourceConfig: map[string]any{
			"endpoint":       server.URL,
			"usesPagination": false,
		},
	}

	_, err := handler.FetchAll(context.Background(), sync, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Envelope")
}
