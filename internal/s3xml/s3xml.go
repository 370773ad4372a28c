// Package s3xml defines the XML response bodies the HTTP API returns.
// Matches gofakes3-lineage shapes from other_examples/: plain structs with
// xml tags, stdlib encoding/xml, no ecosystem XML library — none of the
// S3-compatible servers in the retrieval pack reach for one either.
package s3xml

import "encoding/xml"

// ErrorResponse is the body returned for every failed request.
type ErrorResponse struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Resource  string   `xml:"Resource"`
	RequestID string   `xml:"RequestId"`
}

// Bucket is one entry in ListAllMyBucketsResult.
type Bucket struct {
	Name         string `xml:"Name"`
	CreationDate string `xml:"CreationDate"`
}

// Owner is the fixed owner stanza every listing embeds; fily has no
// multi-tenant identity model, so this is a constant placeholder
// matching the single-operator scope of spec.md §3.
type Owner struct {
	ID          string `xml:"ID"`
	DisplayName string `xml:"DisplayName"`
}

// ListAllMyBucketsResult is the body of GET /.
type ListAllMyBucketsResult struct {
	XMLName xml.Name `xml:"ListAllMyBucketsResult"`
	Xmlns   string   `xml:"xmlns,attr"`
	Owner   Owner    `xml:"Owner"`
	Buckets struct {
		Bucket []Bucket `xml:"Bucket"`
	} `xml:"Buckets"`
}

// ListBucketResult is the body of GET /{bucket} — kept as an always-empty
// listing (spec.md Non-goal), but still a well-formed S3 response.
type ListBucketResult struct {
	XMLName     xml.Name `xml:"ListBucketResult"`
	Xmlns       string   `xml:"xmlns,attr"`
	Name        string   `xml:"Name"`
	Prefix      string   `xml:"Prefix"`
	Marker      string   `xml:"Marker"`
	MaxKeys     int      `xml:"MaxKeys"`
	IsTruncated bool     `xml:"IsTruncated"`
}

// LocationConstraint is the body of GET /{bucket}?location.
type LocationConstraint struct {
	XMLName xml.Name `xml:"LocationConstraint"`
	Xmlns   string   `xml:"xmlns,attr"`
	Region  string   `xml:",chardata"`
}

const xmlns = "http://s3.amazonaws.com/doc/2006-03-01/"

// NewListAllMyBucketsResult builds a populated listing.
func NewListAllMyBucketsResult(owner Owner, buckets []Bucket) ListAllMyBucketsResult {
	r := ListAllMyBucketsResult{Xmlns: xmlns, Owner: owner}
	r.Buckets.Bucket = buckets
	return r
}

// NewEmptyListBucketResult builds the stub listing body for a named
// bucket.
func NewEmptyListBucketResult(bucket, prefix, marker string, maxKeys int) ListBucketResult {
	return ListBucketResult{
		Xmlns:       xmlns,
		Name:        bucket,
		Prefix:      prefix,
		Marker:      marker,
		MaxKeys:     maxKeys,
		IsTruncated: false,
	}
}

// NewLocationConstraint builds the GetBucketLocation body. S3 renders the
// us-east-1 default region as an empty element.
func NewLocationConstraint(region string) LocationConstraint {
	if region == "us-east-1" {
		region = ""
	}
	return LocationConstraint{Xmlns: xmlns, Region: region}
}

// Marshal renders v as an XML document with the standard declaration
// header, matching real S3 responses.
func Marshal(v any) ([]byte, error) {
	body, err := xml.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
