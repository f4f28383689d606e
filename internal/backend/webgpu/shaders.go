package webgpu

// WGSL compute shaders for the layer kernels.
//
// Every shader runs one invocation per output element (or per row for
// softmax) in workgroups of 256. Buffers are bound whole; element offsets and
// sizes travel in a uniform block of 16 words read through pu/pi/pf, with
// word 0 holding the invocation count. Grids wider than 65535 workgroups wrap
// into the y dimension.

const workgroupSize = 256

const prelude = `
struct Params {
    v: array<vec4<u32>, 4>,
}

fn pu(i: u32) -> u32 { return params.v[i / 4u][i % 4u]; }
fn pi(i: u32) -> i32 { return bitcast<i32>(pu(i)); }
fn pf(i: u32) -> f32 { return bitcast<f32>(pu(i)); }

fn flat(gid: vec3<u32>, nwg: vec3<u32>) -> u32 {
    return gid.y * nwg.x * 256u + gid.x;
}
`

const entry = `
@compute @workgroup_size(256)
fn main(@builtin(global_invocation_id) gid: vec3<u32>, @builtin(num_workgroups) nwg: vec3<u32>) {
    let i = flat(gid, nwg);
    if (i >= pu(0u)) {
        return;
    }
`

// params: n, offX, offY, alpha
const axpyShader = prelude + `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read_write> y: array<f32>;
@group(0) @binding(2) var<uniform> params: Params;
` + entry + `
    let o = pu(2u) + i;
    y[o] = y[o] + pf(3u) * x[pu(1u) + i];
}
`

// params: n, off, alpha
const scaleShader = prelude + `
@group(0) @binding(0) var<storage, read_write> x: array<f32>;
@group(0) @binding(1) var<uniform> params: Params;
` + entry + `
    let o = pu(1u) + i;
    x[o] = x[o] * pf(2u);
}
`

// params: n, off, alpha
const setShader = prelude + `
@group(0) @binding(0) var<storage, read_write> x: array<f32>;
@group(0) @binding(1) var<uniform> params: Params;
` + entry + `
    x[pu(1u) + i] = pf(2u);
}
`

// params: n, offA, offB, offY
const mulShader = prelude + `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> y: array<f32>;
@group(0) @binding(3) var<uniform> params: Params;
` + entry + `
    y[pu(3u) + i] = a[pu(1u) + i] * b[pu(2u) + i];
}
`

// params: n, offX, offY
const reluForwardShader = prelude + `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read_write> y: array<f32>;
@group(0) @binding(2) var<uniform> params: Params;
` + entry + `
    y[pu(2u) + i] = max(x[pu(1u) + i], 0.0);
}
`

// params: n, offX, offDY, offDX
const reluBackwardShader = prelude + `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read> dy: array<f32>;
@group(0) @binding(2) var<storage, read_write> dx: array<f32>;
@group(0) @binding(3) var<uniform> params: Params;
` + entry + `
    var g = 0.0;
    if (x[pu(1u) + i] > 0.0) {
        g = dy[pu(2u) + i];
    }
    dx[pu(3u) + i] = g;
}
`

// params: n, offX, offY, steepness
const sigmoidForwardShader = prelude + `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read_write> y: array<f32>;
@group(0) @binding(2) var<uniform> params: Params;
` + entry + `
    y[pu(2u) + i] = 1.0 / (1.0 + exp(-pf(3u) * x[pu(1u) + i]));
}
`

// params: n, offY, offDY, offDX, steepness
const sigmoidBackwardShader = prelude + `
@group(0) @binding(0) var<storage, read> y: array<f32>;
@group(0) @binding(1) var<storage, read> dy: array<f32>;
@group(0) @binding(2) var<storage, read_write> dx: array<f32>;
@group(0) @binding(3) var<uniform> params: Params;
` + entry + `
    let v = y[pu(1u) + i];
    dx[pu(3u) + i] = dy[pu(2u) + i] * pf(4u) * v * (1.0 - v);
}
`

// params: n, offX, offY
const bnllForwardShader = prelude + `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read_write> y: array<f32>;
@group(0) @binding(2) var<uniform> params: Params;
` + entry + `
    let v = x[pu(1u) + i];
    var r = 0.0;
    if (v > 0.0) {
        r = v + log(1.0 + exp(-v));
    } else {
        r = log(1.0 + exp(v));
    }
    y[pu(2u) + i] = r;
}
`

// params: n, offX, offDY, offDX
const bnllBackwardShader = prelude + `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read> dy: array<f32>;
@group(0) @binding(2) var<storage, read_write> dx: array<f32>;
@group(0) @binding(3) var<uniform> params: Params;
` + entry + `
    let e = exp(min(x[pu(1u) + i], 50.0));
    dx[pu(3u) + i] = dy[pu(2u) + i] * e / (e + 1.0);
}
`

// params: n, offX, offMask, offY, scale
const dropoutShader = prelude + `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read> mask: array<u32>;
@group(0) @binding(2) var<storage, read_write> y: array<f32>;
@group(0) @binding(3) var<uniform> params: Params;
` + entry + `
    var v = 0.0;
    if (mask[pu(2u) + i] != 0u) {
        v = x[pu(1u) + i] * pf(4u);
    }
    y[pu(3u) + i] = v;
}
`

// params: n (= m*cols), offA, offB, offC, m, cols, k, transA, transB, alpha, beta
const gemmShader = prelude + `
@group(0) @binding(0) var<storage, read> a: array<f32>;
@group(0) @binding(1) var<storage, read> b: array<f32>;
@group(0) @binding(2) var<storage, read_write> c: array<f32>;
@group(0) @binding(3) var<uniform> params: Params;
` + entry + `
    let m = pu(4u);
    let cols = pu(5u);
    let k = pu(6u);
    let row = i / cols;
    let col = i % cols;
    let oa = pu(1u);
    let ob = pu(2u);

    var acc = 0.0;
    for (var l = 0u; l < k; l = l + 1u) {
        var av = 0.0;
        if (pu(7u) == 0u) {
            av = a[oa + row * k + l];
        } else {
            av = a[oa + l * m + row];
        }
        var bv = 0.0;
        if (pu(8u) == 0u) {
            bv = b[ob + l * cols + col];
        } else {
            bv = b[ob + col * k + l];
        }
        acc = acc + av * bv;
    }

    let o = pu(3u) + i;
    let beta = pf(10u);
    if (beta == 0.0) {
        c[o] = pf(9u) * acc;
    } else {
        c[o] = pf(9u) * acc + beta * c[o];
    }
}
`

// params: n, offIm, offCol, channels, height, width, kernel, pad, stride, outH, outW
const im2colShader = prelude + `
@group(0) @binding(0) var<storage, read> im: array<f32>;
@group(0) @binding(1) var<storage, read_write> col: array<f32>;
@group(0) @binding(2) var<uniform> params: Params;
` + entry + `
    let height = pu(4u);
    let width = pu(5u);
    let ks = pu(6u);
    let pad = pi(7u);
    let stride = pu(8u);
    let outW = pu(10u);
    let plane = pu(9u) * outW;

    let row = i / plane;
    let pos = i % plane;
    let kw = row % ks;
    let kh = (row / ks) % ks;
    let ch = row / (ks * ks);
    let hIn = i32((pos / outW) * stride + kh) - pad;
    let wIn = i32((pos % outW) * stride + kw) - pad;

    var v = 0.0;
    if (hIn >= 0 && hIn < i32(height) && wIn >= 0 && wIn < i32(width)) {
        v = im[pu(1u) + (ch * height + u32(hIn)) * width + u32(wIn)];
    }
    col[pu(2u) + i] = v;
}
`

// params: n, offIm, offCol, channels, height, width, kernel, pad, stride, outH, outW
const col2imShader = prelude + `
@group(0) @binding(0) var<storage, read> col: array<f32>;
@group(0) @binding(1) var<storage, read_write> im: array<f32>;
@group(0) @binding(2) var<uniform> params: Params;
` + entry + `
    let height = pu(4u);
    let width = pu(5u);
    let ks = pu(6u);
    let pad = pi(7u);
    let stride = i32(pu(8u));
    let outH = i32(pu(9u));
    let outW = i32(pu(10u));

    let w = i % width;
    let h = (i / width) % height;
    let ch = i / (width * height);

    var acc = 0.0;
    for (var kh = 0u; kh < ks; kh = kh + 1u) {
        let hp = i32(h) + pad - i32(kh);
        if (hp < 0 || hp % stride != 0 || hp / stride >= outH) {
            continue;
        }
        for (var kw = 0u; kw < ks; kw = kw + 1u) {
            let wp = i32(w) + pad - i32(kw);
            if (wp < 0 || wp % stride != 0 || wp / stride >= outW) {
                continue;
            }
            let row = (ch * ks + kh) * ks + kw;
            let idx = (i32(row) * outH + hp / stride) * outW + wp / stride;
            acc = acc + col[pu(2u) + u32(idx)];
        }
    }
    im[pu(1u) + i] = acc;
}
`

// params: n, offX, offY, offMask, height, width, kernel, stride, pooledH, pooledW, method
const poolForwardShader = prelude + `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read_write> y: array<f32>;
@group(0) @binding(2) var<storage, read_write> mask: array<i32>;
@group(0) @binding(3) var<uniform> params: Params;
` + entry + `
    let height = pu(4u);
    let width = pu(5u);
    let ks = pu(6u);
    let stride = pu(7u);
    let ph = pu(8u);
    let pw = pu(9u);

    let ow = i % pw;
    let oh = (i / pw) % ph;
    let plane = (i / (pw * ph)) * height * width;
    let hs = oh * stride;
    let he = min(hs + ks, height);
    let ws = ow * stride;
    let we = min(ws + ks, width);
    let ox = pu(1u) + plane;

    if (pu(10u) == 0u) {
        var best = bitcast<f32>(0xff800000u);
        var bestIdx = hs * width + ws;
        for (var h = hs; h < he; h = h + 1u) {
            for (var w = ws; w < we; w = w + 1u) {
                let v = x[ox + h * width + w];
                if (v > best) {
                    best = v;
                    bestIdx = h * width + w;
                }
            }
        }
        y[pu(2u) + i] = best;
        mask[pu(3u) + i] = i32(plane + bestIdx);
    } else {
        var sum = 0.0;
        for (var h = hs; h < he; h = h + 1u) {
            for (var w = ws; w < we; w = w + 1u) {
                sum = sum + x[ox + h * width + w];
            }
        }
        y[pu(2u) + i] = sum / f32((he - hs) * (we - ws));
    }
}
`

// params: n, offDY, offMask, offDX, height, width, kernel, stride, pooledH, pooledW, method
const poolBackwardShader = prelude + `
@group(0) @binding(0) var<storage, read> dy: array<f32>;
@group(0) @binding(1) var<storage, read> mask: array<i32>;
@group(0) @binding(2) var<storage, read_write> dx: array<f32>;
@group(0) @binding(3) var<uniform> params: Params;
` + entry + `
    let height = pu(4u);
    let width = pu(5u);
    let ks = pu(6u);
    let stride = pu(7u);
    let ph = pu(8u);
    let pw = pu(9u);

    let w = i % width;
    let h = (i / width) % height;
    let p = i / (width * height);

    var phs = 0u;
    if (h >= ks) {
        phs = (h - ks) / stride + 1u;
    }
    let phe = min(h / stride + 1u, ph);
    var pws = 0u;
    if (w >= ks) {
        pws = (w - ks) / stride + 1u;
    }
    let pwe = min(w / stride + 1u, pw);

    var acc = 0.0;
    for (var oh = phs; oh < phe; oh = oh + 1u) {
        for (var ow = pws; ow < pwe; ow = ow + 1u) {
            let o = (p * ph + oh) * pw + ow;
            if (pu(10u) == 0u) {
                if (mask[pu(2u) + o] == i32(i)) {
                    acc = acc + dy[pu(1u) + o];
                }
            } else {
                let hs = oh * stride;
                let ws = ow * stride;
                let area = (min(hs + ks, height) - hs) * (min(ws + ks, width) - ws);
                acc = acc + dy[pu(1u) + o] / f32(area);
            }
        }
    }
    dx[pu(3u) + i] = acc;
}
`

// params: n, offX, offY, height, width, pad
const padForwardShader = prelude + `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read_write> y: array<f32>;
@group(0) @binding(2) var<uniform> params: Params;
` + entry + `
    let height = pu(3u);
    let width = pu(4u);
    let pad = pu(5u);
    let outH = height + 2u * pad;
    let outW = width + 2u * pad;

    let w = i % outW;
    let h = (i / outW) % outH;
    let p = i / (outW * outH);

    var v = 0.0;
    if (h >= pad && h < height + pad && w >= pad && w < width + pad) {
        v = x[pu(1u) + (p * height + h - pad) * width + w - pad];
    }
    y[pu(2u) + i] = v;
}
`

// params: n, offDY, offDX, height, width, pad
const padBackwardShader = prelude + `
@group(0) @binding(0) var<storage, read> dy: array<f32>;
@group(0) @binding(1) var<storage, read_write> dx: array<f32>;
@group(0) @binding(2) var<uniform> params: Params;
` + entry + `
    let height = pu(3u);
    let width = pu(4u);
    let pad = pu(5u);
    let outH = height + 2u * pad;
    let outW = width + 2u * pad;

    let w = i % width;
    let h = (i / width) % height;
    let p = i / (width * height);
    dx[pu(2u) + i] = dy[pu(1u) + (p * outH + h + pad) * outW + w + pad];
}
`

// params: n, offX, offScale, offY, channels, height, width, size, within, alpha, beta, k
const lrnForwardShader = prelude + `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read_write> scale: array<f32>;
@group(0) @binding(2) var<storage, read_write> y: array<f32>;
@group(0) @binding(3) var<uniform> params: Params;
` + entry + `
    let channels = i32(pu(4u));
    let height = i32(pu(5u));
    let width = i32(pu(6u));
    let size = i32(pu(7u));
    let pre = (size - 1) / 2;
    let ox = pu(1u);

    let w = i32(i) % width;
    let h = (i32(i) / width) % height;
    let c = (i32(i) / (width * height)) % channels;
    let num = i32(i) / (width * height * channels);

    var sum = 0.0;
    var alphaOver = pf(9u) / f32(size);
    if (pu(8u) == 0u) {
        for (var cc = max(c - pre, 0); cc < min(c - pre + size, channels); cc = cc + 1) {
            let v = x[ox + u32(((num * channels + cc) * height + h) * width + w)];
            sum = sum + v * v;
        }
    } else {
        alphaOver = pf(9u) / f32(size * size);
        let plane = (num * channels + c) * height * width;
        for (var hh = max(h - pre, 0); hh < min(h - pre + size, height); hh = hh + 1) {
            for (var ww = max(w - pre, 0); ww < min(w - pre + size, width); ww = ww + 1) {
                let v = x[ox + u32(plane + hh * width + ww)];
                sum = sum + v * v;
            }
        }
    }
    let s = pf(11u) + alphaOver * sum;
    scale[pu(2u) + i] = s;
    y[pu(3u) + i] = x[ox + i] * pow(s, -pf(10u));
}
`

// params: n, offX, offY, offScale, offDY, offDX, channels, height, width, size, within, alpha, beta
const lrnBackwardShader = prelude + `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read> y: array<f32>;
@group(0) @binding(2) var<storage, read> scale: array<f32>;
@group(0) @binding(3) var<storage, read> dy: array<f32>;
@group(0) @binding(4) var<storage, read_write> dx: array<f32>;
@group(0) @binding(5) var<uniform> params: Params;

fn ratio(j: u32) -> f32 {
    return dy[pu(4u) + j] * y[pu(2u) + j] / scale[pu(3u) + j];
}
` + entry + `
    let channels = i32(pu(6u));
    let height = i32(pu(7u));
    let width = i32(pu(8u));
    let size = i32(pu(9u));
    let pre = (size - 1) / 2;
    let alpha = pf(11u);
    let beta = pf(12u);

    let w = i32(i) % width;
    let h = (i32(i) / width) % height;
    let c = (i32(i) / (width * height)) % channels;
    let num = i32(i) / (width * height * channels);

    var acc = 0.0;
    var factor = 2.0 * alpha * beta / f32(size);
    if (pu(10u) == 0u) {
        for (var cc = max(c + pre - size + 1, 0); cc < min(c + pre + 1, channels); cc = cc + 1) {
            acc = acc + ratio(u32(((num * channels + cc) * height + h) * width + w));
        }
    } else {
        factor = 2.0 * alpha * beta / f32(size * size);
        let plane = (num * channels + c) * height * width;
        for (var hh = max(h + pre - size + 1, 0); hh < min(h + pre + 1, height); hh = hh + 1) {
            for (var ww = max(w + pre - size + 1, 0); ww < min(w + pre + 1, width); ww = ww + 1) {
                acc = acc + ratio(u32(plane + hh * width + ww));
            }
        }
    }
    dx[pu(5u) + i] = dy[pu(4u) + i] * pow(scale[pu(3u) + i], -beta) - factor * x[pu(1u) + i] * acc;
}
`

// params: rows, offX, offY, dim
const softmaxForwardShader = prelude + `
@group(0) @binding(0) var<storage, read> x: array<f32>;
@group(0) @binding(1) var<storage, read_write> y: array<f32>;
@group(0) @binding(2) var<uniform> params: Params;
` + entry + `
    let dim = pu(3u);
    let ox = pu(1u) + i * dim;
    let oy = pu(2u) + i * dim;

    var peak = x[ox];
    for (var j = 1u; j < dim; j = j + 1u) {
        peak = max(peak, x[ox + j]);
    }
    var sum = 0.0;
    for (var j = 0u; j < dim; j = j + 1u) {
        let e = exp(x[ox + j] - peak);
        y[oy + j] = e;
        sum = sum + e;
    }
    for (var j = 0u; j < dim; j = j + 1u) {
        y[oy + j] = y[oy + j] / sum;
    }
}
`

// params: rows, offY, offDY, offDX, dim
const softmaxBackwardShader = prelude + `
@group(0) @binding(0) var<storage, read> y: array<f32>;
@group(0) @binding(1) var<storage, read> dy: array<f32>;
@group(0) @binding(2) var<storage, read_write> dx: array<f32>;
@group(0) @binding(3) var<uniform> params: Params;
` + entry + `
    let dim = pu(4u);
    let oy = pu(1u) + i * dim;
    let ody = pu(2u) + i * dim;
    let odx = pu(3u) + i * dim;

    var dot = 0.0;
    for (var j = 0u; j < dim; j = j + 1u) {
        dot = dot + dy[ody + j] * y[oy + j];
    }
    for (var j = 0u; j < dim; j = j + 1u) {
        dx[odx + j] = (dy[ody + j] - dot) * y[oy + j];
    }
}
`

// shaders maps kernel names to their WGSL source.
var shaders = map[string]string{
	"axpy":             axpyShader,
	"scale":            scaleShader,
	"set":              setShader,
	"mul":              mulShader,
	"relu_forward":     reluForwardShader,
	"relu_backward":    reluBackwardShader,
	"sigmoid_forward":  sigmoidForwardShader,
	"sigmoid_backward": sigmoidBackwardShader,
	"bnll_forward":     bnllForwardShader,
	"bnll_backward":    bnllBackwardShader,
	"dropout":          dropoutShader,
	"gemm":             gemmShader,
	"im2col":           im2colShader,
	"col2im":           col2imShader,
	"pool_forward":     poolForwardShader,
	"pool_backward":    poolBackwardShader,
	"pad_forward":      padForwardShader,
	"pad_backward":     padBackwardShader,
	"lrn_forward":      lrnForwardShader,
	"lrn_backward":     lrnBackwardShader,
	"softmax_forward":  softmaxForwardShader,
	"softmax_backward": softmaxBackwardShader,
}

// maxParams is the number of words in the uniform block.
const maxParams = 16

// workgroups splits n invocations into a dispatch grid.
func workgroups(n int) (x, y uint32) {
	groups := (n + workgroupSize - 1) / workgroupSize
	if groups == 0 {
		return 0, 0
	}
	const maxDim = 65535
	if groups <= maxDim {
		return uint32(groups), 1
	}
	return maxDim, uint32((groups + maxDim - 1) / maxDim)
}
