// Package v1 declares the primegen.v1.PrimeService gRPC service and the helpers
// that convert between its wire messages and primegen values.
//
// The service is described with protobuf well-known types (structpb.Struct and
// wrapperspb.StringValue) so no protoc toolchain is needed to build clients or
// servers. The equivalent protobuf declaration is:
//
//	service PrimeService {
//	  rpc Generate(google.protobuf.Struct) returns (stream google.protobuf.Struct);
//	  rpc Check(google.protobuf.StringValue) returns (google.protobuf.Struct);
//	}
package v1
