// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the payloads exported as ONNX initializers and
// tensor-valued attributes.
//
// A RawTensor is an untyped, strided byte buffer with a shape, an element
// type and a device. The exporter only reads payloads: views are made
// contiguous and non-host tensors are copied to host memory before encoding.
//
// # Basic Usage
//
//	w, err := tensor.FromSlice(tensor.Shape{3, 2}, []float32{1, 2, 3, 4, 5, 6})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	wt, _ := tensor.NewView(w, tensor.Shape{2, 3}, []int{1, 2}, 0) // transposed view
//	fmt.Println(wt.IsContiguous()) // false
//
// # Supported Data Types
//
//   - Float32, Float64, Float16, BFloat16
//   - Int8, Int16, Int32, Int64, Uint8, Bool
//   - QInt8, QUInt8, QInt32 (quantized storage types)
//   - Complex64, Complex128 (not exportable)
package tensor
