// Code generated by protoc-gen-go. DO NOT EDIT.
// versions:
// 	protoc-gen-go v1.36.10
// 	protoc        (unknown)
// source: billing/v1/billing.proto

package billingv1

import (
	protoreflect "google.golang.org/protobuf/reflect/protoreflect"
	protoimpl "google.golang.org/protobuf/runtime/protoimpl"
	reflect "reflect"
	sync "sync"
	unsafe "unsafe"
)

const (
	// Verify that this generated code is sufficiently up-to-date.
	_ = protoimpl.EnforceVersion(20 - protoimpl.MinVersion)
	// Verify that runtime/protoimpl is sufficiently up-to-date.
	_ = protoimpl.EnforceVersion(protoimpl.MaxVersion - 20)
)

type EntitlementsRequest struct {
	state         protoimpl.MessageState `protogen:"open.v1"`
	PlaceId       string                 `protobuf:"bytes,1,opt,name=place_id,json=placeId,proto3" json:"place_id,omitempty"`
	unknownFields protoimpl.UnknownFields
	sizeCache     protoimpl.SizeCache
}

func (x *EntitlementsRequest) Reset() {
	*x = EntitlementsRequest{}
	mi := &file_billing_v1_billing_proto_msgTypes[0]
	ms := protoimpl.X.MessageStateOf(protoimpl.Pointer(x))
	ms.StoreMessageInfo(mi)
}

func (x *EntitlementsRequest) String() string {
	return protoimpl.X.MessageStringOf(x)
}

func (*EntitlementsRequest) ProtoMessage() {}

func (x *EntitlementsRequest) ProtoReflect() protoreflect.Message {
	mi := &file_billing_v1_billing_proto_msgTypes[0]
	if x != nil {
		ms := protoimpl.X.MessageStateOf(protoimpl.Pointer(x))
		if ms.LoadMessageInfo() == nil {
			ms.StoreMessageInfo(mi)
		}
		return ms
	}
	return mi.MessageOf(x)
}

// Deprecated: Use EntitlementsRequest.ProtoReflect.Descriptor instead.
func (*EntitlementsRequest) Descriptor() ([]byte, []int) {
	return file_billing_v1_billing_proto_rawDescGZIP(), []int{0}
}

func (x *EntitlementsRequest) GetPlaceId() string {
	if x != nil {
		return x.PlaceId
	}
	return ""
}

type EntitlementsResponse struct {
	state              protoimpl.MessageState `protogen:"open.v1"`
	Tier               string                 `protobuf:"bytes,1,opt,name=tier,proto3" json:"tier,omitempty"`
	Status             string                 `protobuf:"bytes,2,opt,name=status,proto3" json:"status,omitempty"`
	MaxStaff           int32                  `protobuf:"varint,3,opt,name=max_staff,json=maxStaff,proto3" json:"max_staff,omitempty"`
	MaxPlaces          int32                  `protobuf:"varint,4,opt,name=max_places,json=maxPlaces,proto3" json:"max_places,omitempty"`
	MaxMonthlyMessages int32                  `protobuf:"varint,5,opt,name=max_monthly_messages,json=maxMonthlyMessages,proto3" json:"max_monthly_messages,omitempty"`
	Features           []string               `protobuf:"bytes,6,rep,name=features,proto3" json:"features,omitempty"`
	unknownFields      protoimpl.UnknownFields
	sizeCache          protoimpl.SizeCache
}

func (x *EntitlementsResponse) Reset() {
	*x = EntitlementsResponse{}
	mi := &file_billing_v1_billing_proto_msgTypes[1]
	ms := protoimpl.X.MessageStateOf(protoimpl.Pointer(x))
	ms.StoreMessageInfo(mi)
}

func (x *EntitlementsResponse) String() string {
	return protoimpl.X.MessageStringOf(x)
}

func (*EntitlementsResponse) ProtoMessage() {}

func (x *EntitlementsResponse) ProtoReflect() protoreflect.Message {
	mi := &file_billing_v1_billing_proto_msgTypes[1]
	if x != nil {
		ms := protoimpl.X.MessageStateOf(protoimpl.Pointer(x))
		if ms.LoadMessageInfo() == nil {
			ms.StoreMessageInfo(mi)
		}
		return ms
	}
	return mi.MessageOf(x)
}

// Deprecated: Use EntitlementsResponse.ProtoReflect.Descriptor instead.
func (*EntitlementsResponse) Descriptor() ([]byte, []int) {
	return file_billing_v1_billing_proto_rawDescGZIP(), []int{1}
}

func (x *EntitlementsResponse) GetTier() string {
	if x != nil {
		return x.Tier
	}
	return ""
}

func (x *EntitlementsResponse) GetStatus() string {
	if x != nil {
		return x.Status
	}
	return ""
}

func (x *EntitlementsResponse) GetMaxStaff() int32 {
	if x != nil {
		return x.MaxStaff
	}
	return 0
}

func (x *EntitlementsResponse) GetMaxPlaces() int32 {
	if x != nil {
		return x.MaxPlaces
	}
	return 0
}

func (x *EntitlementsResponse) GetMaxMonthlyMessages() int32 {
	if x != nil {
		return x.MaxMonthlyMessages
	}
	return 0
}

func (x *EntitlementsResponse) GetFeatures() []string {
	if x != nil {
		return x.Features
	}
	return nil
}

var File_billing_v1_billing_proto protoreflect.FileDescriptor

const file_billing_v1_billing_proto_rawDesc = "" +
	"\n" +
	"\x18billing/v1/billing.proto\x12\n" +
	"billing.v1\"0\n" +
	"\x13EntitlementsRequest\x12\x19\n" +
	"\bplace_id\x18\x01 \x01(\tR\aplaceId\"\xcc\x01\n" +
	"\x14EntitlementsResponse\x12\x12\n" +
	"\x04tier\x18\x01 \x01(\tR\x04tier\x12\x16\n" +
	"\x06status\x18\x02 \x01(\tR\x06status\x12\x1b\n" +
	"\tmax_staff\x18\x03 \x01(\x05R\bmaxStaff\x12\x1d\n" +
	"\n" +
	"max_places\x18\x04 \x01(\x05R\tmaxPlaces\x120\n" +
	"\x14max_monthly_messages\x18\x05 \x01(\x05R\x12maxMonthlyMessages\x12\x1a\n" +
	"\bfeatures\x18\x06 \x03(\tR\bfeatures2f\n" +
	"\x0eBillingService\x12T\n" +
	"\x0fGetEntitlements\x12\x1f.billing.v1.EntitlementsRequest\x1a .billing.v1.EntitlementsResponseB@Z>github.com/nvoloshyn/placedesk/protos/gen/billing/v1;billingv1b\x06proto3"

var (
	file_billing_v1_billing_proto_rawDescOnce sync.Once
	file_billing_v1_billing_proto_rawDescData []byte
)

func file_billing_v1_billing_proto_rawDescGZIP() []byte {
	file_billing_v1_billing_proto_rawDescOnce.Do(func() {
		file_billing_v1_billing_proto_rawDescData = protoimpl.X.CompressGZIP(unsafe.Slice(unsafe.StringData(file_billing_v1_billing_proto_rawDesc), len(file_billing_v1_billing_proto_rawDesc)))
	})
	return file_billing_v1_billing_proto_rawDescData
}

var file_billing_v1_billing_proto_msgTypes = make([]protoimpl.MessageInfo, 2)
var file_billing_v1_billing_proto_goTypes = []any{
	(*EntitlementsRequest)(nil),  // 0: billing.v1.EntitlementsRequest
	(*EntitlementsResponse)(nil), // 1: billing.v1.EntitlementsResponse
}
var file_billing_v1_billing_proto_depIdxs = []int32{
	0, // 0: billing.v1.BillingService.GetEntitlements:input_type -> billing.v1.EntitlementsRequest
	1, // 1: billing.v1.BillingService.GetEntitlements:output_type -> billing.v1.EntitlementsResponse
	1, // [1:2] is the sub-list for method output_type
	0, // [0:1] is the sub-list for method input_type
	0, // [0:0] is the sub-list for extension type_name
	0, // [0:0] is the sub-list for extension extendee
	0, // [0:0] is the sub-list for field type_name
}

func init() { file_billing_v1_billing_proto_init() }
func file_billing_v1_billing_proto_init() {
	if File_billing_v1_billing_proto != nil {
		return
	}
	type x struct{}
	out := protoimpl.TypeBuilder{
		File: protoimpl.DescBuilder{
			GoPackagePath: reflect.TypeOf(x{}).PkgPath(),
			RawDescriptor: unsafe.Slice(unsafe.StringData(file_billing_v1_billing_proto_rawDesc), len(file_billing_v1_billing_proto_rawDesc)),
			NumEnums:      0,
			NumMessages:   2,
			NumExtensions: 0,
			NumServices:   1,
		},
		GoTypes:           file_billing_v1_billing_proto_goTypes,
		DependencyIndexes: file_billing_v1_billing_proto_depIdxs,
		MessageInfos:      file_billing_v1_billing_proto_msgTypes,
	}.Build()
	File_billing_v1_billing_proto = out.File
	file_billing_v1_billing_proto_goTypes = nil
	file_billing_v1_billing_proto_depIdxs = nil
}
