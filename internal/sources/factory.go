package sources

import (
	"fmt"

	"github.com/openbridge/objectsync/internal/httpclient"
	"github.com/openbridge/objectsync/internal/model"
	"github.com/openbridge/objectsync/internal/register"
)

// defaultHandlerFactory is the default implementation of HandlerFactory.
type defaultHandlerFactory struct {
	client   httpclient.Client
	register register.Register
	db       Querier
}

var _ HandlerFactory = (*defaultHandlerFactory)(nil)

// FactoryOption configures the source handler factory.
type FactoryOption func(*defaultHandlerFactory)

// WithQuerier provides the database connection used by database sources.
func WithQuerier(db Querier) FactoryOption {
	return func(f *defaultHandlerFactory) {
		f.db = db
	}
}

// NewHandlerFactory creates a new source handler factory. A nil client
// falls back to the default HTTP client.
func NewHandlerFactory(client httpclient.Client, reg register.Register, opts ...FactoryOption) HandlerFactory {
	if client == nil {
		client = httpclient.NewDefaultClient(0)
	}
	factory := &defaultHandlerFactory{
		client:   client,
		register: reg,
	}
	for _, opt := range opts {
		opt(factory)
	}
	return factory
}

// CreateHandler creates a source handler for the given source type.
func (f *defaultHandlerFactory) CreateHandler(sourceType string) (SourceHandler, error) {
	switch sourceType {
	case model.SourceTypeAPI, model.SourceTypeJSONAPI:
		return NewAPISourceHandler(f.client), nil
	case model.SourceTypeXML:
		return NewXMLSourceHandler(f.client), nil
	case model.SourceTypeSOAP:
		return NewSOAPSourceHandler(f.client), nil
	case model.SourceTypeFile:
		return NewFileSourceHandler(), nil
	case model.SourceTypeRegister:
		return NewRegisterSourceHandler(f.register), nil
	case model.SourceTypeDatabase:
		return NewDatabaseSourceHandler(f.db), nil
	default:
		return nil, fmt.Errorf("unsupported source type: %s", sourceType)
	}
}
