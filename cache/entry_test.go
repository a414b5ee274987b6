package cache

import (
	"bytes"
	"testing"
)

func TestEntryCodecPage(t *testing.T) {
	value := &PageValue{HTML: []byte("<html>hi</html>"), PageData: []byte(`{"props":{"a":1}}`)}
	b, err := encodeEntry(value, 60)
	if err != nil {
		t.Fatal(err)
	}
	decoded, revalidate, err := decodeEntry(b)
	if err != nil {
		t.Fatal(err)
	}
	page, ok := decoded.(*PageValue)
	if !ok {
		t.Fatalf("Decoded value is %T", decoded)
	}
	if !bytes.Equal(page.HTML, value.HTML) || !bytes.Equal(page.PageData, value.PageData) {
		t.Fatalf("Decoded page is %+v", page)
	}
	if revalidate != 60 {
		t.Fatalf("Revalidate is %d", revalidate)
	}
}

func TestEntryCodecRedirect(t *testing.T) {
	value := &RedirectValue{Props: []byte(`{"destination":"/new","permanent":true}`)}
	b, err := encodeEntry(value, RevalidateNever)
	if err != nil {
		t.Fatal(err)
	}
	decoded, revalidate, err := decodeEntry(b)
	if err != nil {
		t.Fatal(err)
	}
	redirect, ok := decoded.(*RedirectValue)
	if !ok {
		t.Fatalf("Decoded value is %T", decoded)
	}
	if !bytes.Equal(redirect.Props, value.Props) || revalidate != RevalidateNever {
		t.Fatalf("Decoded redirect is %+v (revalidate %d)", redirect, revalidate)
	}
}

func TestEntryCodecNotFound(t *testing.T) {
	b, err := encodeEntry(nil, 10)
	if err != nil {
		t.Fatal(err)
	}
	decoded, revalidate, err := decodeEntry(b)
	if err != nil {
		t.Fatal(err)
	}
	if decoded != nil || revalidate != 10 {
		t.Fatalf("Decoded value is %v (revalidate %d)", decoded, revalidate)
	}
}

func TestEntryCodecImage(t *testing.T) {
	value := &ImageValue{ContentType: "image/png", Data: []byte{1, 2, 3}}
	b, err := encodeEntry(value, 30)
	if err != nil {
		t.Fatal(err)
	}
	decoded, _, err := decodeEntry(b)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := decoded.(*ImageValue); !ok {
		t.Fatalf("Decoded value is %T", decoded)
	}
}

func TestDecodeEntryRejectsGarbage(t *testing.T) {
	if _, _, err := decodeEntry([]byte("not json")); err == nil {
		t.Fatal("Expected error")
	}
}
