package renderer

var characterVertSrc = `#version 410 core

layout(location = 0) in vec3 aPosition;
layout(location = 1) in vec3 aNormal;
layout(location = 2) in vec2 aTexCoord;
layout(location = 3) in vec4 aJoints;
layout(location = 4) in vec4 aWeights;

out vec3 vPosition;
out vec3 vNormal;
out vec2 vTexCoord;

uniform mat4 uModel;
uniform mat4 uView;
uniform mat4 uProjection;

#define MAX_JOINTS 128
uniform bool uSkinned;
uniform mat4 uJoints[MAX_JOINTS];

void main() {
    mat4 skin = mat4(1.0);
    if (uSkinned) {
        skin = aWeights.x * uJoints[int(aJoints.x)]
             + aWeights.y * uJoints[int(aJoints.y)]
             + aWeights.z * uJoints[int(aJoints.z)]
             + aWeights.w * uJoints[int(aJoints.w)];
    }

    mat4 model = uModel * skin;
    vec4 worldPos = model * vec4(aPosition, 1.0);
    vPosition = worldPos.xyz;

    mat3 normalMatrix = transpose(inverse(mat3(model)));
    vNormal = normalMatrix * aNormal;
    vTexCoord = aTexCoord;

    gl_Position = uProjection * uView * worldPos;
}
` + "\x00"

var characterFragSrc = `#version 410 core

in vec3 vPosition;
in vec3 vNormal;
in vec2 vTexCoord;

out vec4 FragColor;

uniform sampler2D uBaseColorTex;
uniform vec4 uBaseColor;
uniform vec3 uCameraPos;

struct Light {
    int type;
    vec3 position;
    vec3 direction;
    vec3 color;
    float intensity;
};

#define MAX_LIGHTS 4
uniform Light uLights[MAX_LIGHTS];
uniform int uLightCount;
uniform vec3 uAmbient;

void main() {
    vec4 base = texture(uBaseColorTex, vTexCoord) * uBaseColor;
    if (base.a < 0.05) {
        discard;
    }

    vec3 color = uAmbient * base.rgb;

    // primitives without normals get ambient plus a flat share of the key light
    if (length(vNormal) < 1e-4) {
        FragColor = vec4(color + base.rgb * 0.3, base.a);
        return;
    }
    vec3 N = normalize(vNormal);

    for (int i = 0; i < uLightCount && i < MAX_LIGHTS; i++) {
        vec3 L = -uLights[i].direction;
        if (uLights[i].type == 1) {
            L = normalize(uLights[i].position - vPosition);
        }
        float NdotL = max(dot(N, L), 0.0);
        color += base.rgb * uLights[i].color * uLights[i].intensity * NdotL;
    }

    FragColor = vec4(color, base.a);
}
` + "\x00"

var backgroundVertSrc = `#version 410 core

out vec2 vTexCoord;

uniform vec2 uScale;

void main() {
    vec2 positions[3] = vec2[](
        vec2(-1.0, -1.0),
        vec2(3.0, -1.0),
        vec2(-1.0, 3.0)
    );

    vec2 p = positions[gl_VertexID];
    gl_Position = vec4(p, 0.0, 1.0);

    vec2 uv = (p + 1.0) * 0.5;
    uv = (uv - 0.5) * uScale + 0.5;
    vTexCoord = vec2(uv.x, 1.0 - uv.y);
}
` + "\x00"

var backgroundFragSrc = `#version 410 core

in vec2 vTexCoord;
out vec4 FragColor;

uniform sampler2D uBackground;

void main() {
    FragColor = vec4(texture(uBackground, vTexCoord).rgb, 1.0);
}
` + "\x00"
