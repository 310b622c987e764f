package sources

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/openbridge/objectsync/internal/httpclient"
)

// SOAP envelope element names, matched without namespace prefixes.
const (
	soapEnvelopeElement = "Envelope"
	soapBodyElement     = "Body"
)

// NewXMLSourceHandler creates a handler for XML-over-HTTP sources. Bodies
// are converted to generic maps and then share the API pagination loop.
func NewXMLSourceHandler(client httpclient.Client) *APISourceHandler {
	return &APISourceHandler{
		client:     client,
		decodeBody: xmlBodyToJSON,
	}
}

// NewSOAPSourceHandler creates a handler for SOAP endpoints. On top of the
// XML conversion, the Envelope/Body wrapper is unwrapped so result
// positions address the payload directly.
func NewSOAPSourceHandler(client httpclient.Client) *APISourceHandler {
	return &APISourceHandler{
		client:     client,
		decodeBody: soapBodyToJSON,
	}
}

func xmlBodyToJSON(body []byte) ([]byte, error) {
	decoded, err := decodeXML(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode XML response: %w", err)
	}
	return json.Marshal(decoded)
}

func soapBodyToJSON(body []byte) ([]byte, error) {
	decoded, err := decodeXML(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode SOAP response: %w", err)
	}

	envelope, ok := decoded[soapEnvelopeElement].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("SOAP response is missing an Envelope element")
	}
	payload, ok := envelope[soapBodyElement]
	if !ok {
		return nil, fmt.Errorf("SOAP envelope is missing a Body element")
	}
	return json.Marshal(payload)
}

// decodeXML converts an XML document into nested maps: attributes become
// "@name" keys, repeated sibling elements collapse into lists, and text
// content of leaf elements becomes the element value ("#text" when mixed
// with children). Namespace prefixes are dropped.
func decodeXML(data []byte) (map[string]any, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))

	for {
		token, err := decoder.Token()
		if err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("document has no root element")
			}
			return nil, err
		}
		if start, ok := token.(xml.StartElement); ok {
			value, err := decodeElement(decoder, start)
			if err != nil {
				return nil, err
			}
			return map[string]any{start.Name.Local: value}, nil
		}
	}
}

func decodeElement(decoder *xml.Decoder, start xml.StartElement) (any, error) {
	node := make(map[string]any)
	for _, attr := range start.Attr {
		if attr.Name.Space == "xmlns" || attr.Name.Local == "xmlns" {
			continue
		}
		node["@"+attr.Name.Local] = attr.Value
	}

	var text strings.Builder
	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}

		switch t := token.(type) {
		case xml.StartElement:
			child, err := decodeElement(decoder, t)
			if err != nil {
				return nil, err
			}
			appendChild(node, t.Name.Local, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			content := strings.TrimSpace(text.String())
			if len(node) == 0 {
				// Leaf element: its value is the text content.
				return content, nil
			}
			if content != "" {
				node["#text"] = content
			}
			return node, nil
		}
	}
}

// appendChild adds a child value, collapsing repeated siblings into a list.
func appendChild(node map[string]any, name string, child any) {
	existing, ok := node[name]
	if !ok {
		node[name] = child
		return
	}
	if list, ok := existing.([]any); ok {
		node[name] = append(list, child)
		return
	}
	node[name] = []any{existing, child}
}
